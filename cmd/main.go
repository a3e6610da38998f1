package main

import (
	"context"
	"flag"
	"os"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/run"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/w3bucket/bucket-provider/config"
	"github.com/w3bucket/bucket-provider/internal/access"
	"github.com/w3bucket/bucket-provider/internal/db"
	ldb "github.com/w3bucket/bucket-provider/internal/db/leveldb"
	"github.com/w3bucket/bucket-provider/internal/events"
	"github.com/w3bucket/bucket-provider/internal/ledger"
	"github.com/w3bucket/bucket-provider/internal/prices"
	"github.com/w3bucket/bucket-provider/internal/server"
	"github.com/w3bucket/bucket-provider/internal/service"
	"github.com/w3bucket/bucket-provider/internal/settle"
	"github.com/w3bucket/bucket-provider/internal/tokens"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

var (
	ConfigPath = flag.String("config", "./config.json", "Path to config file (.json)")
	DBPath     = flag.String("db", "./db", "Path to db")
	Verbosity  = flag.Int("verbosity", 0, "Debug logs")
)

func main() {
	flag.Parse()

	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *Verbosity > 0 {
		log.Logger = log.Logger.Level(zerolog.DebugLevel).With().Logger()
	}

	cfg, err := config.LoadConfig(*ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if !common.IsHexAddress(cfg.AdminAddress) {
		log.Fatal().Msg("please set a valid admin address in config")
	}
	if !common.IsHexAddress(cfg.VaultAddress) {
		log.Fatal().Msg("please set a valid vault address in config")
	}
	admin := common.HexToAddress(cfg.AdminAddress)
	vault := common.HexToAddress(cfg.VaultAddress)

	xdb, err := ldb.NewDB(*DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load db")
	}

	halted, err := xdb.GetHalted()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load halted state")
	}
	guard := access.NewGuard([]common.Address{admin}, halted)

	bus := ebus.New()
	events.AttachLogger(bus, log.Logger.With().Str("source", "events").Logger())

	priceReg, err := prices.NewRegistry(xdb, guard, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init price registry")
	}

	set := tokens.NewSet()
	for _, cur := range cfg.Currencies {
		addr, err := cur.CurrencyAddress()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid currency in config")
		}
		if addr != db.NativeCurrency {
			set.Add(addr, tokens.NewFungible(cur.Symbol, cur.Decimals))
		}
	}

	settler, err := settle.NewSettler(xdb, priceReg, guard, tokens.NewBank(), set, vault, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init settler")
	}

	ldgr, err := ledger.New(xdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init renewal ledger")
	}

	reg, err := tokens.NewRegistry(xdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init token registry")
	}

	svc := service.NewService(xdb, priceReg, settler, ldgr, reg, guard, guard, cfg.CapacityUnitMegabytes, bus)

	if len(svc.UnitPrices()) == 0 {
		seed, err := cfg.UnitPrices()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to resolve configured unit prices")
		}
		if err = svc.SetUnitPrices(admin, seed); err != nil {
			log.Fatal().Err(err).Msg("failed to seed unit prices")
		}
	}

	if cfg.Kafka != nil {
		sink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Logger.With().Str("source", "kafka").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init kafka sink")
		}
		defer sink.Close()
		sink.Attach(bus)
	}

	printPrices(cfg, svc)

	srv := server.NewServer(cfg.ListenAddr, svc, bus, log.Logger.With().Str("source", "server").Logger())

	log.Info().Str("admin", admin.Hex()).Str("vault", vault.Hex()).Bool("halted", halted).Msg("service started")

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return srv.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	if err = g.Run(); err != nil {
		log.Info().Err(err).Msg("service stopped")
	}
	_ = xdb.Close()
}

func printPrices(cfg *config.Config, svc *service.Service) {
	symbols := map[common.Address]string{}
	for _, cur := range cfg.Currencies {
		if addr, err := cur.CurrencyAddress(); err == nil {
			symbols[addr] = cur.Symbol
		}
	}

	data := pterm.TableData{{"Currency", "Symbol", "Unit price"}}
	for _, p := range svc.UnitPrices() {
		sym := symbols[p.Currency]
		if p.Currency == db.NativeCurrency {
			if sym == "" {
				sym = "NATIVE"
			}
		}
		data = append(data, []string{p.Currency.Hex(), sym, p.Price.String()})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
