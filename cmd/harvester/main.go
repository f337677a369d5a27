package main

import "github.com/JakeFAU/job-harvester/cmd"

func main() {
	cmd.Execute()
}
