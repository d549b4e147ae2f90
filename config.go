package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver/mac"
	"github.com/vzex/dog-homa/driver/udp"
	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/protocol"
	"github.com/vzex/dog-homa/sender"
)

const (
	defaultLogLevel    = "info"
	defaultLogFilename = "dog-homa.log"
	defaultErrFilename = "dog-homa_err.log"
	defaultJournalDir  = "journal"
)

var (
	defaultHomeDir = defaultHome()
	defaultLogDir  = filepath.Join(defaultHomeDir, "logs")
	defaultDataDir = filepath.Join(defaultHomeDir, "data")
)

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dog-homa"
	}
	return filepath.Join(home, ".dog-homa")
}

type sendFlags struct {
	To      string        `long:"to" required:"true" description:"Link address of the receiver"`
	File    string        `long:"file" description:"File to send as one message (stdin when empty)"`
	Timeout time.Duration `long:"timeout" description:"Give up waiting for the outcome after this long"`
}

type sinkFlags struct {
	Out string `long:"out" description:"Directory to write received messages to"`
}

type configFlags struct {
	Listen       string        `short:"l" long:"listen" description:"UDP address to listen on"`
	MAC          string        `short:"m" long:"mac" description:"Link address of this node"`
	Peers        []string      `short:"p" long:"peer" description:"Add a peer as <mac>=<host:port>"`
	MTU          int           `long:"mtu" description:"Largest datagram to send"`
	Compress     bool          `long:"compress" description:"Compress datagrams, both sides must agree"`
	DataShards   int           `long:"ds" description:"FEC data shards, 0 disables FEC"`
	ParityShards int           `long:"ps" description:"FEC parity shards, 0 disables FEC"`
	Unscheduled  int           `long:"unscheduled" description:"Packets sent before the first grant"`
	StallTimeout time.Duration `long:"stalltimeout" description:"Retransmit after this long without progress"`
	MaxRetries   int           `long:"maxretries" description:"Stall retransmissions before a message fails"`
	PingInterval time.Duration `long:"pinginterval" description:"Liveness probe period"`
	MaxPings     int           `long:"maxpings" description:"Unanswered probes before a message fails"`
	Workers      int           `long:"workers" description:"Goroutines sharing each transmission pass"`
	LogDir       string        `long:"logdir" description:"Directory to log output"`
	DebugLevel   string        `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, optionally with per-subsystem overrides such as info,SNDR=trace"`
	Journal      string        `long:"journal" choice:"leveldb" choice:"mysql" choice:"none" description:"Where to record message outcomes"`
	DataDir      string        `short:"b" long:"datadir" description:"Directory for the leveldb journal"`
	MySQLUser    string        `long:"mysqluser" description:"MySQL journal user"`
	MySQLPass    string        `long:"mysqlpass" default-mask:"-" description:"MySQL journal password"`
	MySQLHost    string        `long:"mysqlhost" description:"MySQL journal host:port"`
	MySQLDB      string        `long:"mysqldb" description:"MySQL journal database"`
	AdminAddr    string        `long:"admin" description:"Serve the admin interface on this address"`

	Send sendFlags `command:"send" description:"Send a file as one message and wait for its outcome"`
	Sink sinkFlags `command:"sink" description:"Receive messages"`
}

type config struct {
	*configFlags
	command string
	link    *udp.Setting
	sender  *sender.Setting
	mysql   *journal.MySQLSetting
	to      mac.Address
}

func defaultFlags() configFlags {
	link := udp.DefaultSetting()
	snd := sender.DefaultSetting()
	db := journal.DefaultMySQLSetting()
	return configFlags{
		Listen:       link.Listen,
		MTU:          link.MTU,
		Unscheduled:  snd.UnscheduledPackets,
		StallTimeout: snd.StallTimeout,
		MaxRetries:   snd.MaxStallRetries,
		PingInterval: snd.PingInterval,
		MaxPings:     snd.MaxPings,
		Workers:      snd.Workers,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		Journal:      "leveldb",
		DataDir:      defaultDataDir,
		MySQLUser:    db.User,
		MySQLHost:    db.Address,
		MySQLDB:      db.Database,
	}
}

// loadConfig parses the command line and resolves it into driver, sender
// and journal settings.
func loadConfig(args []string) (*config, error) {
	cfgFlags := defaultFlags()
	parser := flags.NewParser(&cfgFlags, flags.Default)
	_, err := parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}
	cfg := &config{configFlags: &cfgFlags, command: parser.Active.Name}
	if err := cfg.resolve(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, err
	}
	return cfg, nil
}

func (cfg *config) resolve() error {
	local, err := mac.Parse(cfg.MAC)
	if err != nil {
		return errors.Wrap(err, "--mac")
	}
	if local.IsNull() {
		return errors.New("--mac must not be the null address")
	}

	link := udp.DefaultSetting()
	link.Listen = cfg.Listen
	link.LocalMAC = local
	link.MTU = cfg.MTU
	link.Compress = cfg.Compress
	link.DataShards = cfg.DataShards
	link.ParityShards = cfg.ParityShards
	if (cfg.DataShards > 0) != (cfg.ParityShards > 0) {
		return errors.New("--ds and --ps must be set together")
	}
	if link.MaxPayloadSize() <= protocol.DataHeaderLength {
		return errors.Errorf("--mtu %d leaves no room after a %d byte data header",
			cfg.MTU, protocol.DataHeaderLength)
	}
	for _, peer := range cfg.Peers {
		parts := strings.SplitN(peer, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			return errors.Errorf("--peer %q is not <mac>=<host:port>", peer)
		}
		hw, err := mac.Parse(parts[0])
		if err != nil {
			return errors.Wrapf(err, "--peer %q", peer)
		}
		link.Peers[hw] = parts[1]
	}
	cfg.link = link

	cfg.sender = &sender.Setting{
		UnscheduledPackets: cfg.Unscheduled,
		StallTimeout:       cfg.StallTimeout,
		MaxStallRetries:    cfg.MaxRetries,
		PingInterval:       cfg.PingInterval,
		MaxPings:           cfg.MaxPings,
		PollInterval:       sender.DefaultSetting().PollInterval,
		Workers:            cfg.Workers,
	}

	cfg.mysql = journal.DefaultMySQLSetting()
	cfg.mysql.User = cfg.MySQLUser
	cfg.mysql.Password = cfg.MySQLPass
	cfg.mysql.Address = cfg.MySQLHost
	cfg.mysql.Database = cfg.MySQLDB

	if cfg.command == "send" {
		if cfg.to, err = mac.Parse(cfg.Send.To); err != nil {
			return errors.Wrap(err, "--to")
		}
		if _, ok := link.Peers[cfg.to]; !ok {
			return errors.Errorf("--to %s has no --peer endpoint", cfg.to)
		}
	}
	return nil
}
