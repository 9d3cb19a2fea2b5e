package main

import (
	"ps1dev/cmd" // Import the cmd package which contains the CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line argument parsing and execution.
//
// ps1dev provisions a PlayStation 1 homebrew toolchain and drives projects built with it:
//   - Reads a tool catalog (JSON or YAML, with a built-in default) naming a download URL,
//     install directory and check file for every tool on every platform
//   - Downloads and unpacks GCC for mipsel, PSn00bSDK, an emulator and GDB multiarch,
//     handling ZIP, 7z, tar variants and macOS disk images
//   - Records installed tools in a JSON config file under the install root
//   - Creates a hello-world project and fills toolchain paths into its setup.mk and
//     debugger launch descriptor
//   - Runs make, make run and make iso with the toolchain prepended to PATH
//
// Error handling strategy:
//   - A failed install of an optional tool (emulator, debugger) is a warning
//   - Failures of required tools and of project workflows exit with a non-zero status
//   - Download and extraction details go to an optional JSON diagnostics log
func main() {
	cmd.Execute()
}
