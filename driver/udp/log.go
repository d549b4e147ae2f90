package udp

import "github.com/vzex/dog-homa/logger"

var log = logger.RegisterSubSystem("UDPD")
