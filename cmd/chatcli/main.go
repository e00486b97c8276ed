// Command chatcli is a terminal client for the chat service.
package main

func main() {
	Execute()
}
