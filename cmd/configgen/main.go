package main

import (
	"flag"
	"log"

	"github.com/danmuck/interactivectl/internal/config"
)

func main() {
	format := flag.String("format", "toml", "config format: toml|yaml")
	output := flag.String("output", "", "output path for config template (defaults to interactivectl.<format>)")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to interactivectl.<format>)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if _, err := config.Template(*format); err != nil {
		log.Fatal(err)
	}
	defaultPath := "interactivectl." + *format

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s (timeout=%s auto_reconnect=%t)", path, cfg.Client.Timeout, cfg.Client.AutoReconnect)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *format, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *format, target)
}
