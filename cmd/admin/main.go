package main

import (
	"encoding/json"
	"fmt"
	"os"

	"tilestream.ai/internal/sim/scenes"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "reload":
			reloadCmd(os.Args[2:])
			return
		case "failed":
			failedCmd(os.Args[2:])
			return
		}
	}
	scenesCmd()
}

func scenesCmd() {
	for _, d := range scenes.Default().All() {
		kind := "map"
		if d.Kind == scenes.KindWorld {
			kind = "world"
		}
		printJSON(struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			MapNum int    `json:"map_num,omitempty"`
		}{d.ID, d.Name, kind, d.MapNum})
	}
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
