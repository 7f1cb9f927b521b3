/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package main

import "github.com/indrora/darn/darc/cmd"

func main() {
	cmd.Execute()
}
