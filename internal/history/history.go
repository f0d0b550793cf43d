// Package history reads SLT run history for a server from the hyvetest
// MySQL database.
//
// Missing credentials disable the lookups: every query then returns zero
// values and a nil error, so callers treat it exactly like "no data".
package history

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/logging"
)

// DefaultRunLimit is how many recent runs are inspected per server.
const DefaultRunLimit = 20

// Config holds the database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Timeout  time.Duration
}

// Missing returns the names of the required settings that are empty, in
// the environment-variable form operators set them with.
func (c Config) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "RACKBRAIN_DB_HOST")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "RACKBRAIN_DB_USER")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "RACKBRAIN_DB_PASS")
	}
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "RACKBRAIN_DB_NAME")
	}
	return missing
}

// DriverConfig returns the MySQL driver configuration for c.
func (c Config) DriverConfig() *mysql.Config {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cfg := mysql.NewConfig()
	cfg.User = strings.TrimSpace(c.User)
	cfg.Passwd = strings.TrimSpace(c.Password)
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(port))
	cfg.DBName = strings.TrimSpace(c.Name)
	cfg.ParseTime = true
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// Client queries hyvetest. A Client built from incomplete settings is
// disabled.
type Client struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open returns a Client for cfg. No connection is made until the first
// query.
func Open(cfg Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{logger: logger}
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Info().Strs("missing", missing).Msg("db lookup disabled, missing settings")
		return c, nil
	}

	dc := cfg.DriverConfig()
	connector, err := mysql.NewConnector(dc)
	if err != nil {
		return nil, rberrors.Wrap(err, "failed to configure hyvetest connection")
	}
	logger.Debug().Str("dsn", logging.SafeValue("dsn", dc.FormatDSN())).Msg("db lookup enabled")
	c.db = sql.OpenDB(connector)
	c.db.SetMaxOpenConns(4)
	c.db.SetConnMaxIdleTime(time.Minute)
	return c, nil
}

// Enabled reports whether lookups will reach the database.
func (c *Client) Enabled() bool {
	return c != nil && c.db != nil
}

// Ping verifies connectivity. It returns ErrLookupUnavailable when the
// client is disabled.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return rberrors.ErrLookupUnavailable
	}
	return rberrors.Wrap(c.db.PingContext(ctx), "hyvetest ping failed")
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}

// ServerDetails is the current SLT context of one server.
type ServerDetails struct {
	SN                string
	ServerStatusID    *int64
	ServerOK          *int64
	Position          string
	RackSN            string
	Model             string
	CustomerIPN       string
	TestRackSN        string
	TM2Version        string
	TesterEmail       string
	Started           time.Time
	Finished          time.Time
	ServerErrorDetail string
	FailedTestcase    string
	FailedTestset     string
	FailureMessage    string
	Guti              string
}

const serverDetailsQuery = `
SELECT
    Server.sn_tag,
    ServerStatus.id,
    ServerStatus.ok,
    Server.position,
    Rack.sn_tag,
    ServerStatus.states -> '$.sfcs.model',
    ServerStatus.states -> '$.sfcs.customerIpn',
    ServerStatus.states -> '$.meta."rack_sn"',
    ServerStatus.states -> '$.meta."code_version"',
    ServerStatus.states -> '$.operation_records[0]."user_email"',
    ServerStatus.started,
    ServerStatus.finished,
    servererror.detail,
    JSON_UNQUOTE(ServerStatus.states -> '$.jar_deliver."testErrorCode"'),
    JSON_UNQUOTE(ServerStatus.states -> '$.jar_deliver."associatedTestSetName"'),
    JSON_UNQUOTE(ServerStatus.states -> '$.jar_deliver."failureMessage"'),
    ServerStatus.states -> '$.jar_deliver.associatedTestSetGuti'
FROM Server
JOIN ServerStatus ON Server.serverstatus_id = ServerStatus.id
LEFT JOIN servererror ON ServerStatus.id = servererror.serverstatus_id
LEFT JOIN Rack ON Server.rack_id = Rack.id
WHERE Server.sn_tag = ?
LIMIT 1`

// ServerDetails returns the server's current status row, or nil when the
// server is unknown or the client is disabled. JSON-extracted values keep
// their surrounding quotes.
func (c *Client) ServerDetails(ctx context.Context, sn string) (*ServerDetails, error) {
	if !c.Enabled() || sn == "" {
		return nil, nil
	}

	var (
		d                                                    ServerDetails
		ssid, ok                                             sql.NullInt64
		pos, rack, model, ipn, testRack, tm2, email, errText sql.NullString
		tc, ts, msg, guti                                    sql.NullString
		started, finished                                    sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, serverDetailsQuery, sn).Scan(
		&d.SN, &ssid, &ok, &pos, &rack, &model, &ipn, &testRack, &tm2, &email,
		&started, &finished, &errText, &tc, &ts, &msg, &guti,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, rberrors.Wrapf(err, "server details query failed for %s", sn)
	}

	d.ServerStatusID = int64Ptr(ssid)
	d.ServerOK = int64Ptr(ok)
	d.Position = pos.String
	d.RackSN = rack.String
	d.Model = model.String
	d.CustomerIPN = ipn.String
	d.TestRackSN = testRack.String
	d.TM2Version = tm2.String
	d.TesterEmail = email.String
	d.Started = started.Time
	d.Finished = finished.Time
	d.ServerErrorDetail = errText.String
	d.FailedTestcase = tc.String
	d.FailedTestset = ts.String
	d.FailureMessage = msg.String
	d.Guti = guti.String
	return &d, nil
}

const runsQuery = `
SELECT
    s.sn_tag,
    ss.id,
    ss.ok,
    ss.started,
    ss.finished,
    JSON_UNQUOTE(ss.states->'$.jar_deliver."associatedTestSetName"'),
    JSON_UNQUOTE(ss.states->'$.jar_deliver."testErrorCode"'),
    JSON_UNQUOTE(ss.states->'$.jar_deliver."failureMessage"'),
    JSON_UNQUOTE(ss.states->'$.jar_deliver."associatedTestSetGuti"')
FROM Server s
JOIN ServerStatus ss ON s.id = ss.server_id
WHERE s.sn_tag = ?
ORDER BY ss.finished DESC
LIMIT ?`

// Runs returns up to limit recent runs for sn, newest first.
func (c *Client) Runs(ctx context.Context, sn string, limit int) ([]Run, error) {
	if !c.Enabled() || sn == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	rows, err := c.db.QueryContext(ctx, runsQuery, sn, limit)
	if err != nil {
		return nil, rberrors.Wrapf(err, "runs query failed for %s", sn)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			ok                sql.NullInt64
			started, finished sql.NullTime
			ts, tc, msg, guti sql.NullString
		)
		if err := rows.Scan(&r.SN, &r.SLTID, &ok, &started, &finished, &ts, &tc, &msg, &guti); err != nil {
			return nil, rberrors.Wrap(err, "failed to scan run row")
		}
		r.OK = int64Ptr(ok)
		r.Started = started.Time
		r.Finished = finished.Time
		r.FailedTestset = ts.String
		r.FailedTestcase = tc.String
		r.FailureMessage = msg.String
		r.Guti = guti.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, rberrors.Wrap(err, "failed to read run rows")
	}
	return runs, nil
}

// LatestFailedRun returns the newest failing run matching the optional
// filters, or nil.
func (c *Client) LatestFailedRun(ctx context.Context, sn, testcaseContains, testset string) (*FailedRun, error) {
	runs, err := c.Runs(ctx, sn, DefaultRunLimit)
	if err != nil {
		return nil, err
	}
	return SelectLatestFailed(runs, testcaseContains, testset), nil
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
