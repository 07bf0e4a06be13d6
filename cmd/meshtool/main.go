// meshtool inspects and exercises glTF meshes through the engine mesh model.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	errUsage          = errors.New("missing argument")
	errUnknownCommand = errors.New("unknown command")
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUnknownCommand) {
			printUsage(os.Stderr)
		}
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "info":
		return cmdInfo(args, out)
	case "bounds":
		return cmdBounds(args, out)
	case "collision":
		return cmdCollision(args, out)
	case "dump":
		return cmdDump(args, out)
	case "recolor":
		return cmdRecolor(args, out)
	case "clone":
		return cmdClone(args, out)
	case "transform":
		return cmdTransform(args, out)
	case "config":
		return cmdConfig(args, out)
	case "watch":
		return cmdWatch(args, out)
	case "upload":
		return cmdUpload(args, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `meshtool - glTF mesh inspection utility

Usage:
  meshtool <command> [options] <file.gltf>

Commands:
  info <file>                      Show layout, submeshes, skin tables, memory
  bounds <file>                    Show the axis-aligned bounds
  collision <file>                 Build the collision mesh and count it
  dump [-n N] <file>               Print the first N vertices of every attribute
  recolor [-color r,g,b,a] [-first I] [-count N] <file>
                                   Overwrite vertex colors and report uploads
  clone <file>                     Clone, edit the copy, compare both
  transform [-translate x,y,z] [-scale x,y,z] <file>
                                   Move vertices and report bounds and uploads
  config [-o path] [-save]         Print the effective config, optionally write it
  watch <file>                     Reload on change and print bounds
  upload <file>                    Create GPU buffers and report memory

Shared options:
  -config <path>   Config file (default ./meshtool.yaml)
  -debug           Debug logging
  -backend <name>  headless or gl
  -unreadable      Drop CPU vertex copies after upload

Examples:
  meshtool info models/fox.gltf
  meshtool recolor -color 1,0,0,1 -first 0 -count 3 models/fox.gltf
  meshtool upload -backend gl models/fox.gltf`)
}
