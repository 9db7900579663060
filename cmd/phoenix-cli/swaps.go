package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/urfave/cli"
)

var swapCommands = []cli.Command{
	{
		Name:     "swaps",
		Aliases:  []string{"s"},
		Usage:    "manage swap outs",
		Category: "Swaps",
		Subcommands: []cli.Command{
			newSwapCommand,
			listSwapsCommand,
			getSwapCommand,
			updateAmountCommand,
			prepareCommand,
			sendCommand,
			invalidateCommand,
		},
	},
}

var newSwapCommand = cli.Command{
	Name:      "new",
	Usage:     "create a new swap out flow",
	ArgsUsage: "address",
	Description: "Creates a new swap out flow towards the given on-chain " +
		"destination address. An optional requested amount pins the " +
		"minimum amount the flow will accept.",
	Flags: []cli.Flag{
		cli.Int64Flag{
			Name: "requested_amount",
			Usage: "the amount in satoshis an originating " +
				"payment link asked for, 0 if the user is " +
				"free to choose",
		},
	},
	Action: newSwap,
}

func newSwap(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "new"}
	}

	req := struct {
		Address            string `json:"address"`
		RequestedAmountSat int64  `json:"requested_amount_sat"`
	}{
		Address:            ctx.Args().First(),
		RequestedAmountSat: ctx.Int64("requested_amount"),
	}

	var resp json.RawMessage
	err := getClient(ctx).post("/v1/swaps", &req, &resp)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var listSwapsCommand = cli.Command{
	Name:    "list",
	Aliases: []string{"l"},
	Usage:   "list all swap outs",
	Action:  listSwaps,
}

func listSwaps(ctx *cli.Context) error {
	var resp json.RawMessage
	if err := getClient(ctx).get("/v1/swaps", &resp); err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var getSwapCommand = cli.Command{
	Name:      "get",
	Usage:     "show a single swap out",
	ArgsUsage: "swap_id",
	Action:    getSwap,
}

func getSwap(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "get"}
	}

	var resp json.RawMessage
	err := getClient(ctx).get(
		"/v1/swaps/"+ctx.Args().First(), &resp,
	)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var updateAmountCommand = cli.Command{
	Name:      "amount",
	Usage:     "update the chosen amount of a swap out flow",
	ArgsUsage: "swap_id amt_sat",
	Description: "Sets the user's chosen amount. Changing the amount of " +
		"an already prepared swap out invalidates its quote.",
	Action: updateAmount,
}

func updateAmount(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return &invalidUsageError{ctx, "amount"}
	}

	amt, err := parseAmt(ctx.Args().Get(1))
	if err != nil {
		return err
	}

	req := struct {
		AmountSat int64 `json:"amount_sat"`
	}{
		AmountSat: amt,
	}

	var resp json.RawMessage
	err = getClient(ctx).post(
		"/v1/swaps/"+ctx.Args().First()+"/amount", &req, &resp,
	)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var prepareCommand = cli.Command{
	Name:      "prepare",
	Usage:     "validate the amount and request a fee quote",
	ArgsUsage: "swap_id",
	Description: "Validates the flow's current amount against the swap " +
		"terms and requests a fee quote for it. On success the flow " +
		"is ready to send with the total to be debited fixed.",
	Action: prepare,
}

func prepare(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "prepare"}
	}

	var resp json.RawMessage
	err := getClient(ctx).post(
		"/v1/swaps/"+ctx.Args().First()+"/prepare", struct{}{},
		&resp,
	)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var sendCommand = cli.Command{
	Name:      "send",
	Usage:     "submit a prepared swap out for execution",
	ArgsUsage: "swap_id",
	Action:    send,
}

func send(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "send"}
	}

	var resp json.RawMessage
	err := getClient(ctx).post(
		"/v1/swaps/"+ctx.Args().First()+"/send", struct{}{}, &resp,
	)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

var invalidateCommand = cli.Command{
	Name:      "invalidate",
	Usage:     "discard a prepared quote and start over",
	ArgsUsage: "swap_id",
	Action:    invalidate,
}

func invalidate(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, "invalidate"}
	}

	var resp json.RawMessage
	err := getClient(ctx).post(
		"/v1/swaps/"+ctx.Args().First()+"/invalidate", struct{}{},
		&resp,
	)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

// parseAmt parses a satoshi amount from a command line argument.
func parseAmt(text string) (int64, error) {
	amt, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to decode amount: %v", err)
	}
	return amt, nil
}
