package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nownosw/phoenix"
	"github.com/urfave/cli"
)

const (
	// requestTimeout is the maximum time a single call to the daemon may
	// take.
	requestTimeout = 30 * time.Second
)

type invalidUsageError struct {
	ctx     *cli.Context
	command string
}

func (e *invalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of command %s", e.command)
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, _ = out.WriteTo(os.Stdout)
}

func fatal(err error) {
	var e *invalidUsageError
	if errors.As(err, &e) {
		_ = cli.ShowCommandHelp(e.ctx, e.command)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "[phoenix] %v\n", err)
	}
	os.Exit(1)
}

// client is a thin JSON HTTP client for the phoenixd daemon.
type client struct {
	base string
	http *http.Client
}

func getClient(ctx *cli.Context) *client {
	return &client{
		base: "http://" + ctx.GlobalString("rpcserver"),
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// errorResponse is the daemon's uniform error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func (c *client) do(req *http.Request, resp interface{}) error {
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return err
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil &&
			errResp.Error != "" {

			return errors.New(errResp.Error)
		}
		return fmt.Errorf("daemon returned status %d",
			httpResp.StatusCode)
	}

	if resp == nil {
		return nil
	}
	return json.Unmarshal(body, resp)
}

func (c *client) get(path string, resp interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, resp)
}

func (c *client) post(path string, reqBody, resp interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(
		http.MethodPost, c.base+path, bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	return c.do(req, resp)
}

func main() {
	app := cli.NewApp()

	app.Version = phoenix.Version()
	app.Name = "phoenix"
	app.Usage = "control plane for your phoenixd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:9740",
			Usage: "phoenixd daemon address host:port",
		},
	}
	app.Commands = append(app.Commands, convertCommand)
	app.Commands = append(app.Commands, rateCommand)
	app.Commands = append(app.Commands, termsCommand)
	app.Commands = append(app.Commands, setBalanceCommand)
	app.Commands = append(app.Commands, swapCommands...)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

var convertCommand = cli.Command{
	Name:      "convert",
	Usage:     "convert a raw amount string to a validated amount",
	ArgsUsage: "amount",
	Description: "Parses the given amount in the given unit and returns " +
		"the validated satoshi amount together with its fiat or " +
		"bitcoin equivalent.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "unit",
			Value: "sat",
			Usage: "unit of the amount, one of sat, bit, mbtc, " +
				"btc or a fiat currency code",
		},
		cli.StringFlag{
			Name:  "display_unit",
			Value: "sat",
			Usage: "bitcoin unit the converted value is shown in",
		},
	},
	Action: convert,
}

func convert(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "convert"}
	}

	req := struct {
		Amount      string `json:"amount"`
		Unit        string `json:"unit"`
		DisplayUnit string `json:"display_unit"`
	}{
		Amount:      ctx.Args().First(),
		Unit:        ctx.String("unit"),
		DisplayUnit: ctx.String("display_unit"),
	}

	var resp json.RawMessage
	err := getClient(ctx).post("/v1/convert", &req, &resp)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var rateCommand = cli.Command{
	Name:   "rate",
	Usage:  "show the current fiat exchange rate",
	Action: rate,
}

func rate(ctx *cli.Context) error {
	var resp json.RawMessage
	if err := getClient(ctx).get("/v1/rate", &resp); err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var termsCommand = cli.Command{
	Name:   "terms",
	Usage:  "show the current swap out terms",
	Action: terms,
}

func terms(ctx *cli.Context) error {
	var resp json.RawMessage
	if err := getClient(ctx).get("/v1/terms", &resp); err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var setBalanceCommand = cli.Command{
	Name:      "setbalance",
	Usage:     "push a new off-chain balance snapshot to the daemon",
	ArgsUsage: "amt_sat",
	Action:    setBalance,
}

func setBalance(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "setbalance"}
	}

	amt, err := parseAmt(ctx.Args().First())
	if err != nil {
		return err
	}

	req := struct {
		BalanceSat int64 `json:"balance_sat"`
	}{
		BalanceSat: amt,
	}
	return getClient(ctx).post("/v1/balance", &req, nil)
}
