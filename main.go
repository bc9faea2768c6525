// Command goccp talks to ECUs over the CAN Calibration Protocol.
//
// Usage:
//
//	goccp <command> [flags]
//
// Commands:
//
//	ports     list serial ports
//	adapters  list CAN adapters
//	info      show ECU identification, protection and CCP version
//	read      read ECU memory
//	write     write ECU memory
//	status    get or set the session status
//	checksum  let the ECU checksum a memory block
//	shell     interactive session
//	config    print or save the effective configuration
//
// Every session command accepts -sim to run against a built in simulated
// ECU instead of real hardware.
package main

import (
	"fmt"
	"log"
	"os"
)

const usage = `goccp - CAN Calibration Protocol tool

Usage:
  goccp <command> [flags]

Commands:
  ports     list serial ports
  adapters  list CAN adapters
  info      show ECU identification, protection and CCP version
  read      read ECU memory
  write     write ECU memory
  status    get or set the session status
  checksum  let the ECU checksum a memory block
  shell     interactive session
  config    print or save the effective configuration

Use "goccp <command> -help" for more information about a command.
`

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "ports":
		err = runPorts()
	case "adapters":
		runAdapters()
	case "info":
		err = runInfo(args)
	case "read":
		err = runRead(args)
	case "write":
		err = runWrite(args)
	case "status":
		err = runStatus(args)
	case "checksum":
		err = runChecksum(args)
	case "shell":
		err = runShell(args)
	case "config":
		err = runConfig(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
