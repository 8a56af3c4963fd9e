// Package config loads CUE stack documents and turns them into engine
// resources. References and secrets are written as marker objects in the
// document: {$from: {resource: "server", output: "ipv4"}} and
// {$secret: "..."}.
package config
