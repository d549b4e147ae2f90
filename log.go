package main

import "github.com/vzex/dog-homa/logger"

var log = logger.RegisterSubSystem("HOMA")
