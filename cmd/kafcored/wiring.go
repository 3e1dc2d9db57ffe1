package main

import "github.com/kafcore/kafcore/internal/appconfig"

// Wiring holds the consumer factories and (de)serialization functions
// registered for each topic name, the Go-only values a YAML config
// file cannot express. A deployment's build imports this package and
// calls Register from an init func for every topic its config file
// names; kafcored itself ships no consumers.
var Wiring = make(map[string]appconfig.TopicWiring)

// Register binds topic to w. Call it from an init func in the
// deployment-specific package that vendors kafcored as its main.
func Register(topic string, w appconfig.TopicWiring) {
	Wiring[topic] = w
}
