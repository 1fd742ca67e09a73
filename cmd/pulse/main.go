// Pulse CLI tool performs common tasks related to operating the Pulse
// instrumentation agent.
package main

func main() {
	Execute()
}
