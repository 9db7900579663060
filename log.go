// As this file is very similar in every package, ignore the linter here.
// nolint:dupl,interfacer
package phoenix

import (
	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/nownosw/phoenix/amounts"
	"github.com/nownosw/phoenix/clientdb"
	"github.com/nownosw/phoenix/rates"
	"github.com/nownosw/phoenix/swap"
	"github.com/nownosw/phoenix/terms"
)

const Subsystem = "PHNX"

var (
	logWriter = build.NewRotatingLogWriter()
	log       = build.NewSubLogger(Subsystem, nil)
	rpcLog    = build.NewSubLogger("RPCS", nil)
)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.RotatingLogWriter, intercept signal.Interceptor) {
	genLogger := genSubLogger(root, intercept)

	logWriter = root
	log = build.NewSubLogger(Subsystem, genLogger)
	rpcLog = build.NewSubLogger("RPCS", genLogger)

	lnd.SetSubLogger(root, Subsystem, log)
	lnd.SetSubLogger(root, "RPCS", rpcLog)
	lnd.AddSubLogger(root, amounts.Subsystem, intercept, amounts.UseLogger)
	lnd.AddSubLogger(root, swap.Subsystem, intercept, swap.UseLogger)
	lnd.AddSubLogger(root, rates.Subsystem, intercept, rates.UseLogger)
	lnd.AddSubLogger(root, terms.Subsystem, intercept, terms.UseLogger)
	lnd.AddSubLogger(root, "SGNL", intercept, signal.UseLogger)
	lnd.AddSubLogger(
		root, clientdb.Subsystem, intercept, clientdb.UseLogger,
	)
}

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in the case of a critical error.
func genSubLogger(root *build.RotatingLogWriter,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	// Create a shutdown function which will request shutdown from our
	// interceptor if it is listening.
	shutdown := func() {
		if !interceptor.Listening() {
			return
		}

		interceptor.RequestShutdown()
	}

	// Return a function which will create a sublogger from our root
	// logger without shutdown fn.
	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, shutdown)
	}
}
