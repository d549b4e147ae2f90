package journal

import (
	"database/sql"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Schema creates the table the MySQL journal writes to.
const Schema = `CREATE TABLE IF NOT EXISTS outcomes (
	transport_id BIGINT UNSIGNED NOT NULL,
	sequence BIGINT UNSIGNED NOT NULL,
	destination BIGINT UNSIGNED NOT NULL,
	state VARCHAR(16) NOT NULL,
	packets INT NOT NULL,
	sent INT NOT NULL,
	retries INT NOT NULL,
	pings INT NOT NULL,
	at DATETIME(6) NOT NULL,
	PRIMARY KEY (transport_id, sequence)
)`

const insertOutcome = "REPLACE INTO outcomes (transport_id, sequence, destination, state, packets, sent, retries, pings, at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)"

// MySQLSetting locates the journal database.
type MySQLSetting struct {
	User         string
	Password     string
	Address      string
	Database     string
	Timeout      time.Duration
	PingInterval time.Duration
}

func DefaultMySQLSetting() *MySQLSetting {
	return &MySQLSetting{
		User:         "root",
		Address:      "127.0.0.1:3306",
		Database:     "doghoma",
		Timeout:      5 * time.Second,
		PingInterval: 15 * time.Minute,
	}
}

// DSN returns the driver connection string for the setting.
func (s *MySQLSetting) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = s.Address
	cfg.DBName = s.Database
	cfg.Timeout = s.Timeout
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// MySQL writes outcomes to the outcomes table.
type MySQL struct {
	db     *sql.DB
	insert *sql.Stmt
	quit   chan struct{}
	wg     sync.WaitGroup
}

// OpenMySQL connects to the database, creates the outcomes table if needed
// and keeps the connection pool alive.
func OpenMySQL(setting *MySQLSetting) (*MySQL, error) {
	db, err := sql.Open("mysql", setting.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open mysql journal")
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create outcomes table")
	}
	insert, err := db.Prepare(insertOutcome)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "prepare outcome insert")
	}
	j := &MySQL{db: db, insert: insert, quit: make(chan struct{})}
	if setting.PingInterval > 0 {
		j.wg.Add(1)
		go j.keepAlive(setting.PingInterval)
	}
	log.Infof("mysql journal at %s/%s", setting.Address, setting.Database)
	return j, nil
}

func (j *MySQL) keepAlive(interval time.Duration) {
	defer j.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := j.db.Ping(); err != nil {
				log.Warnf("mysql journal ping: %s", err)
			}
		case <-j.quit:
			return
		}
	}
}

func (j *MySQL) Record(o Outcome) error {
	_, err := j.insert.Exec(o.Id.TransportId, o.Id.Sequence, uint64(o.Destination), o.State,
		o.Packets, o.Sent, o.Retries, o.Pings, o.At.UTC())
	return errors.Wrapf(err, "record %s", o.Id)
}

func (j *MySQL) Close() error {
	close(j.quit)
	j.wg.Wait()
	j.insert.Close()
	return j.db.Close()
}
