package phoenix

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nownosw/phoenix/amounts"
	"github.com/nownosw/phoenix/rates"
	"github.com/nownosw/phoenix/terms"
)

var (
	// DefaultBaseDir is the default root data directory where phoenixd
	// will store all its data. On UNIX like systems this will resolve to
	// ~/.phoenix. Below this directory the logs and network directory
	// will be created.
	DefaultBaseDir = btcutil.AppDataDir("phoenix", false)

	// DefaultLogFilename is the default name that is given to the
	// phoenixd log file.
	DefaultLogFilename = "phoenixd.log"

	defaultLogLevel   = "info"
	defaultLogDirname = "logs"
	defaultLogDir     = filepath.Join(DefaultBaseDir, defaultLogDirname)

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
)

const (
	defaultFiatCurrency = "USD"

	// defaultSwapBaseFee is the flat fee component the fee estimate adds
	// on top of the chain fee, expressed in satoshis.
	defaultSwapBaseFee = 1000

	// defaultSwapFeeRate is the proportional fee component of the fee
	// estimate, expressed in parts per million of the swapped amount.
	defaultSwapFeeRate = 100
)

// FeeConfig holds the parameters of the linear fee schedule that is used to
// estimate swap-out fees when no remote quote service is configured.
type FeeConfig struct {
	BaseFee int64 `long:"basefee" description:"Flat swap fee in satoshis"`
	FeeRate int64 `long:"feerate" description:"Proportional swap fee in parts per million"`
}

// RatesConfig holds the configuration of the fiat exchange rate feed.
type RatesConfig struct {
	URL      string        `long:"url" description:"URL of the blockchain.info compatible ticker endpoint"`
	Fiat     string        `long:"fiat" description:"Fiat currency code to track, e.g. USD or EUR"`
	Interval time.Duration `long:"interval" description:"Interval between two exchange rate refreshes"`
}

// Config holds all configuration of the phoenixd daemon.
type Config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Network     string `long:"network" description:"network to run on" choice:"regtest" choice:"testnet" choice:"mainnet" choice:"simnet"`
	RPCListen   string `long:"rpclisten" description:"Address to listen on for JSON HTTP clients"`
	BaseDir     string `long:"basedir" description:"The base directory where phoenixd stores all its data"`

	TermsURL   string `long:"termsurl" description:"URL of the remote swap terms document, leave empty to use the built-in defaults"`
	PublishURL string `long:"publishurl" description:"URL of the endpoint that broadcasts swap-out transactions"`

	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Rates *RatesConfig `group:"rates" namespace:"rates"`
	Fees  *FeeConfig   `group:"fees" namespace:"fees"`

	// RPCListener is a network listener that can be set if phoenixd should
	// be used as a library and listen on the given listener instead of
	// what is configured in the --rpclisten parameter.
	RPCListener net.Listener
}

// DefaultConfig returns the default configuration of the phoenixd daemon.
func DefaultConfig() Config {
	return Config{
		Network:        "mainnet",
		RPCListen:      "localhost:9740",
		BaseDir:        DefaultBaseDir,
		LogDir:         defaultLogDir,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		DebugLevel:     defaultLogLevel,
		Rates: &RatesConfig{
			URL:      rates.DefaultTickerURL,
			Fiat:     defaultFiatCurrency,
			Interval: rates.DefaultRefreshInterval,
		},
		Fees: &FeeConfig{
			BaseFee: defaultSwapBaseFee,
			FeeRate: defaultSwapFeeRate,
		},
	}
}

// Validate makes sure the configuration is sane and fills in derived values.
func (c *Config) Validate() error {
	if _, err := networkParams(c.Network); err != nil {
		return err
	}

	if c.Rates.Fiat == "" {
		return fmt.Errorf("a fiat currency code must be set")
	}
	if c.Rates.Interval <= 0 {
		return fmt.Errorf("invalid rate refresh interval %v",
			c.Rates.Interval)
	}

	if c.Fees.BaseFee < 0 || c.Fees.FeeRate < 0 {
		return fmt.Errorf("swap fees cannot be negative")
	}

	return nil
}

// networkParams maps a network name to its chain parameters.
func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %v", network)
	}
}

// fiatUnit returns the fiat currency the daemon is configured to track.
func (c *Config) fiatUnit() amounts.FiatUnit {
	return amounts.FiatUnit(c.Rates.Fiat)
}

// feeSchedule builds the configured linear fee schedule.
func (c *Config) feeSchedule() terms.FeeSchedule {
	return terms.NewLinearFeeSchedule(
		btcutil.Amount(c.Fees.BaseFee), btcutil.Amount(c.Fees.FeeRate),
	)
}
