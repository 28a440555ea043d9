// Command rplay runs R code in isolated interpreter sessions.
package main

func main() {
	Execute()
}
