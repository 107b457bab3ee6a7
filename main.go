/*
Copyright © 2026 Prism Contributors
*/
package main

import "github.com/lightfield-labs/prism/cmd"

func main() {
	cmd.Execute()
}
