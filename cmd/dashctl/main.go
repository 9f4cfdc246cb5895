// Command dashctl drives the dashboard's backend operations from a terminal
// and can run the in-memory demo backend.
package main

func main() {
	Execute()
}
