package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pinionos/x402-client/internal/config"
	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/service"
	"github.com/pinionos/x402-client/internal/skills"
	"github.com/pinionos/x402-client/pkg/pinion"
	"github.com/pinionos/x402-client/pkg/x402"
	"github.com/pinionos/x402-client/pkg/x402/evm"
)

const usage = `usage: pinion [-config file] [-env file] <command> [args]

skills:
  balance <address>              ETH and USDC balances
  price <token>                  token price in USD
  tx <hash>                      transaction details
  wallet                         server-generated wallet
  chat <message>                 chat with the Pinion agent
  send <to> <amount> <ETH|USDC>  build an unsigned transfer
  trade [-slippage n] <src> <dst> <amount>
  fund [address]                 funding instructions (default: own wallet)
  broadcast -to addr [-data hex] [-value wei] [-gas-limit n]
  unlimited                      buy an unlimited API key and use it
  unlimited-verify <key>         check an API key (free)

other:
  pay [-method M] [-body json] [-max atomic] <url>   pay any x402 endpoint
  status                         wallet and spend status
  generate                       create a local wallet key
  verify-header [-asset a] [-name n] [-version v] <base64>
  serve                          run the status server
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pinion", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	cfgPath := fs.String("config", "", "path to YAML config file")
	envPath := fs.String("env", ".env", "path to .env file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	// Commands that need no session.
	switch cmd {
	case "generate":
		out, err := generate()
		return finish(stdout, stderr, out, err)
	case "verify-header":
		out, err := verifyHeader(rest)
		return finish(stdout, stderr, out, err)
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: load config: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app, err := pinion.NewApp(cfg, pinion.WithPrometheus(reg, reg), pinion.WithLogOutput(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Close(closeCtx)
	}()
	if err := app.Start(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	var out any
	if cmd == "serve" {
		err = serve(ctx, app)
	} else {
		out, err = dispatch(ctx, app.Service, cmd, rest)
	}
	return finish(stdout, stderr, out, err)
}

func dispatch(ctx context.Context, svc *service.Service, cmd string, args []string) (any, error) {
	switch cmd {
	case "status":
		return svc.Status(), nil
	case "pay":
		return pay(ctx, svc, args)
	case "unlimited":
		return svc.ActivateUnlimited(ctx)
	}

	sk, err := svc.Skills()
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "balance":
		if len(args) != 1 {
			return nil, errUsage
		}
		return sk.Balance(ctx, args[0])
	case "price":
		if len(args) != 1 {
			return nil, errUsage
		}
		return sk.Price(ctx, args[0])
	case "tx":
		if len(args) != 1 {
			return nil, errUsage
		}
		return sk.Tx(ctx, args[0])
	case "wallet":
		return sk.Wallet(ctx)
	case "chat":
		if len(args) == 0 {
			return nil, errUsage
		}
		return sk.Chat(ctx, strings.Join(args, " "), nil)
	case "send":
		if len(args) != 3 {
			return nil, errUsage
		}
		return sk.Send(ctx, args[0], args[1], args[2])
	case "trade":
		fs := flag.NewFlagSet("trade", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		slippage := fs.Float64("slippage", skills.DefaultSlippage, "slippage in percent")
		if err := fs.Parse(args); err != nil || fs.NArg() != 3 {
			return nil, errUsage
		}
		return sk.Trade(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2), *slippage)
	case "fund":
		if len(args) > 1 {
			return nil, errUsage
		}
		addr := ""
		if len(args) == 1 {
			addr = args[0]
		}
		return sk.Fund(ctx, addr)
	case "broadcast":
		fs := flag.NewFlagSet("broadcast", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var tx skills.BroadcastTx
		fs.StringVar(&tx.To, "to", "", "recipient address")
		fs.StringVar(&tx.Data, "data", "", "calldata hex")
		fs.StringVar(&tx.Value, "value", "", "value in wei")
		fs.StringVar(&tx.GasLimit, "gas-limit", "", "gas limit")
		if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
			return nil, errUsage
		}
		return sk.Broadcast(ctx, tx)
	case "unlimited-verify":
		if len(args) != 1 {
			return nil, errUsage
		}
		return sk.UnlimitedVerify(ctx, args[0])
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

type payResult struct {
	Status         int             `json:"status"`
	Data           json.RawMessage `json:"data"`
	URL            string          `json:"url"`
	Method         string          `json:"method"`
	PaidAmount     string          `json:"paidAmount"`
	ResponseTimeMs int64           `json:"responseTimeMs"`
}

func pay(ctx context.Context, svc *service.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	method := fs.String("method", http.MethodGet, "HTTP method")
	body := fs.String("body", "", "JSON request body")
	maxAmount := fs.String("max", "", "maximum payment in atomic units")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return nil, errUsage
	}

	opts := service.PayOptions{Method: *method, MaxAmount: *maxAmount}
	if *body != "" {
		if !json.Valid([]byte(*body)) {
			return nil, fmt.Errorf("%w: -body must be valid JSON", errUsage)
		}
		opts.Body = json.RawMessage(*body)
	}

	resp, err := svc.PayService(ctx, fs.Arg(0), opts)
	if err != nil {
		return nil, err
	}
	return payResult{
		Status:         resp.Status,
		Data:           resp.Data,
		URL:            resp.URL,
		Method:         resp.Method,
		PaidAmount:     resp.PaidAmount,
		ResponseTimeMs: resp.ResponseTime.Milliseconds(),
	}, nil
}

func generate() (any, error) {
	signer, key, err := evm.GenerateSigner()
	if err != nil {
		return nil, err
	}
	return service.Wallet{Address: signer.Address(), PrivateKey: key}, nil
}

type headerReport struct {
	Valid     bool                `json:"valid"`
	Recovered string              `json:"recovered,omitempty"`
	Payload   x402.PaymentPayload `json:"payload"`
	Error     string              `json:"error,omitempty"`
}

// verifyHeader decodes an X-PAYMENT value and checks its signature. The
// envelope does not carry the token domain, so it is taken from flags.
func verifyHeader(args []string) (any, error) {
	fs := flag.NewFlagSet("verify-header", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asset := fs.String("asset", x402.DefaultTokenAddress, "token contract")
	name := fs.String("name", x402.DefaultTokenName, "EIP-712 domain name")
	version := fs.String("version", x402.DefaultTokenVersion, "EIP-712 domain version")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return nil, errUsage
	}

	payload, err := x402.DecodePaymentHeader(fs.Arg(0))
	if err != nil {
		return nil, err
	}
	auth := payload.Payload.Authorization
	req := x402.PaymentRequirement{
		Scheme:            payload.Scheme,
		Network:           payload.Network,
		Asset:             *asset,
		PayTo:             auth.To,
		MaxAmountRequired: x402.Amount(auth.Value),
		Extra:             &x402.RequirementExtra{Name: *name, Version: *version},
	}

	report := headerReport{Payload: payload}
	recovered, err := evm.RecoverAuthorizer(auth, req, payload.Payload.Signature)
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}
	report.Recovered = recovered
	report.Valid = strings.EqualFold(recovered, auth.From)
	return report, nil
}

func serve(ctx context.Context, app *pinion.App) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := app.StatusServer()
	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info().Str("address", app.Config.Server.Address).Msg("status_server.listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		app.Logger.Info().Msg("status_server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func finish(stdout, stderr io.Writer, out any, err error) int {
	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "error: %v\n\n%s", err, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "error [%s]: %v\n", apierrors.CodeOf(err), err)
		return 1
	}
	if out == nil {
		return 0
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "error: encode output: %v\n", err)
		return 1
	}
	return 0
}
