// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

// Persistent flag values shared by every castctl subcommand. The root
// command binds them once; session and daemon commands read them through
// the accessors below.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string

	// Stamped by the castctl/castd binaries at link time.
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers hands the root command the storage for its
// persistent flags: verbose, quiet, json, and the config file override.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion records the build stamp passed down from main.
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose reports whether --verbose was given.
func GetVerbose() bool {
	return verboseFlag
}

// GetQuiet reports whether --quiet was given. Quiet suppresses the
// human-readable chatter around session output.
func GetQuiet() bool {
	return quietFlag
}

// GetJSON reports whether --json was given. Session listing and show
// commands switch from tabular to JSON output when set.
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the --config override, or "" for the default
// castd config search path.
func GetConfigPath() string {
	return configFlag
}

// GetVersion returns the recorded version, commit, and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}
