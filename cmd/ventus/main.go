package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mfalcone/ventus/internal/logger"
	"github.com/mfalcone/ventus/pkg/predict"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ventus [flags] <command>

commands:
  ratings     replay the archive and print current team ratings
  predict     score opportunities for upcoming fixtures
  accuracy    print per-market accuracy profiles
  sweep       resettle the archive into the accuracy profiles
  evaluate    backtest the baseline model over the archive

flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dbPath := flag.String("db", "", "sqlite database path (overrides config)")
	postgres := flag.String("postgres", "", "postgres connection string; used instead of sqlite when set")
	oddsURL := flag.String("odds", "", "base URL of an odds page source")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	if *configPath != "" {
		if _, err := predict.LoadConfig(*configPath); err != nil {
			logger.Fatal("Could not load config", err)
		}
	}
	if *dbPath != "" {
		predict.Config.DBPath = *dbPath
	}

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	store, err := openStore(*postgres)
	if err != nil {
		logger.Fatal("Could not open store", err)
	}
	defer store.Close()

	var odds predict.OddsSource
	if *oddsURL != "" {
		odds = predict.NewHTTPOddsSource(*oddsURL)
	}

	engine := predict.NewEngine(store, predict.NewBaselineModel(), nil, odds)

	switch cmd := flag.Arg(0); cmd {
	case "ratings":
		err = runRatings(engine, store)
	case "predict":
		err = runPredict(engine, store)
	case "accuracy":
		err = runAccuracy(store)
	case "sweep":
		err = runSweep(engine)
	case "evaluate":
		err = runEvaluate(engine, store)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("Command failed", err)
	}
}

func openStore(postgres string) (predict.Store, error) {
	if postgres != "" {
		return predict.OpenPostgresStore(postgres)
	}
	return predict.OpenSQLiteStore(predict.Config.DBPath)
}

func runRatings(engine *predict.Engine, store predict.Store) error {
	if err := engine.Refresh(); err != nil {
		return err
	}
	matches, err := store.AllFinished()
	if err != nil {
		return err
	}

	seen := make(map[int64]bool)
	for _, m := range matches {
		for _, id := range []int64{m.HomeTeamID, m.AwayTeamID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Printf("team %d\t%.1f\n", id, engine.Ratings().Rating(id))
		}
	}
	return nil
}

func runPredict(engine *predict.Engine, store predict.Store) error {
	if err := engine.Refresh(); err != nil {
		return err
	}

	// Upcoming fixtures are whatever IDs were passed on the command line
	var fixtures []*predict.Match
	for _, arg := range flag.Args()[1:] {
		var id int64
		if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
			return fmt.Errorf("invalid match id %q: %w", arg, err)
		}
		fixture, err := store.MatchByID(id)
		if err != nil {
			return err
		}
		if fixture == nil {
			return fmt.Errorf("match %d not found", id)
		}
		fixtures = append(fixtures, fixture)
	}
	if len(fixtures) == 0 {
		return fmt.Errorf("predict needs at least one match id")
	}

	byMatch, slip, err := engine.PredictAll(fixtures)
	if err != nil {
		return err
	}

	for matchID, opportunities := range byMatch {
		fmt.Printf("match %d\n", matchID)
		for _, o := range opportunities {
			fmt.Printf("  %-35s %s  score %.1f\n", o.Market, o.Selection, o.Score)
		}
	}
	fmt.Println("slip:")
	for _, o := range slip.Picks {
		fmt.Printf("  match %d  %-35s score %.1f\n", o.MatchID, o.Market, o.Score)
	}
	return nil
}

func runAccuracy(store predict.Store) error {
	profiles, err := store.Profiles()
	if err != nil {
		return err
	}
	for _, p := range profiles {
		fmt.Printf("%-15s %4d evaluated  %5.1f%%\n", p.Market, p.Evaluated, p.Accuracy()*100)
	}
	return nil
}

func runSweep(engine *predict.Engine) error {
	if err := engine.Refresh(); err != nil {
		return err
	}
	settled, err := engine.RunAccuracySweep()
	if err != nil {
		return err
	}
	fmt.Printf("settled %d picks into the accuracy profiles\n", settled)
	return nil
}

func runEvaluate(engine *predict.Engine, store predict.Store) error {
	if err := engine.Refresh(); err != nil {
		return err
	}
	snapshots, err := predict.BuildSnapshots(store, predict.NewFeatureEngine(store, engine.Ratings(), predict.NewDerbyRegistry()))
	if err != nil {
		return err
	}
	if err := predict.StoreSnapshots(store, snapshots); err != nil {
		return err
	}
	hitRate, evaluated, err := predict.EvaluateModel(predict.NewBaselineModel(), snapshots)
	if err != nil {
		return err
	}
	fmt.Printf("evaluated %d fixtures, 1X2 hit rate %.1f%%\n", evaluated, hitRate*100)
	return nil
}
