// Command schema prints the JSON Schema for the server or client
// configuration, for editor completion and deploy-time validation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"emberfall/internal/config"
)

func main() {
	which := flag.String("for", "server", "which config to describe: server or client")
	flag.Parse()

	var target any
	switch *which {
	case "server":
		target = &config.Server{}
	case "client":
		target = &config.Client{}
	default:
		log.Fatalf("unknown config %q", *which)
	}

	schema := jsonschema.Reflect(target)
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("marshal schema: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
