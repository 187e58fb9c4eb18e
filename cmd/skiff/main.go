// Skiff - Single-VM Lifecycle Engine
// Observe. Converge. Done.
package main

func main() {
	Execute()
}
