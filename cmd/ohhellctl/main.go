// Command ohhellctl is the operator tool for the scorekeeper's stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/app"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/config"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

const helpText = `usage: ohhellctl <command> [args]

commands:
  leaderboard [-cached]  print every player ranked by rating (-cached reads Redis)
  stats <player-id>      print one player's statistics and rating history
  export [-o file]       write the registry as JSON (stdout by default)
  import <file>          replace the registry with an exported document
  recalc                 replay every completed game and rebuild ratings
  hash-password          read a password and print its bcrypt hash
`

// cmdHandler defines the signature for command handler functions.
type cmdHandler func(ctx context.Context, args []string) error

var commands = map[string]cmdHandler{
	"leaderboard":   handleLeaderboard,
	"stats":         handleStats,
	"export":        handleExport,
	"import":        handleImport,
	"recalc":        handleRecalc,
	"hash-password": handleHashPassword,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(helpText)
		os.Exit(1)
	}
	handler, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		fmt.Print(helpText)
		os.Exit(1)
	}
	if err := handler(context.Background(), os.Args[2:]); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// open loads configuration and the registry. The CLI acts with the admin role:
// whoever can run it already holds the store credentials.
func open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := cfg.NewLogger()
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	pterm.Info.Printfln("Loaded from %s store.", a.Source)
	return a, nil
}

func formatRatio(r engine.Ratio, percent bool) string {
	if !r.OK {
		return "-"
	}
	if percent {
		return fmt.Sprintf("%.0f%%", r.Value*100)
	}
	return fmt.Sprintf("%.2f", r.Value)
}

func renderLeaderboard(rows []engine.Display) error {
	data := pterm.TableData{{"#", "Player", "Rating", "Games", "Wins", "Win rate", "Bid accuracy", "Avg place"}}
	for i, d := range rows {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			d.Name,
			strconv.Itoa(d.Rating),
			strconv.Itoa(d.GamesPlayed),
			strconv.Itoa(d.GamesWon),
			formatRatio(d.WinRate, true),
			formatRatio(d.BidAccuracy, true),
			formatRatio(d.AveragePlacement, false),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func handleLeaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	cached := fs.Bool("cached", false, "read the ranking kept in Redis")
	top := fs.Int64("n", 25, "rows to show with -cached")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if !*cached {
		return renderLeaderboard(a.Games.Leaderboard())
	}

	if a.Cache == nil {
		return fmt.Errorf("redis is not configured or unreachable")
	}
	entries, err := a.Cache.TopRatings(ctx, *top)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"#", "Player", "Rating"}}
	for i, e := range entries {
		name := e.PlayerID
		if p, err := a.Games.GetPlayer(e.PlayerID); err == nil {
			name = p.Name
		}
		data = append(data, []string{strconv.Itoa(i + 1), name, strconv.Itoa(e.Rating)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func handleStats(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ohhellctl stats <player-id>")
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Games.GetPlayer(args[0])
	if err != nil {
		return err
	}
	d := engine.DisplayStats(p)
	pterm.DefaultSection.Println(p.Name)
	if err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Rating", strconv.Itoa(d.Rating)},
		{"Games played", strconv.Itoa(d.GamesPlayed)},
		{"Games won", strconv.Itoa(d.GamesWon)},
		{"Rounds played", strconv.Itoa(d.RoundsPlayed)},
		{"Win rate", formatRatio(d.WinRate, true)},
		{"Bid accuracy", formatRatio(d.BidAccuracy, true)},
		{"Average bid", formatRatio(d.AverageBid, false)},
		{"Average placement", formatRatio(d.AveragePlacement, false)},
	}).Render(); err != nil {
		return err
	}

	if len(p.RatingHistory) == 0 {
		return nil
	}
	history := pterm.TableData{{"Date", "Game", "Before", "After", "Change"}}
	for _, h := range p.RatingHistory {
		history = append(history, []string{
			h.Timestamp.Format("2006-01-02"),
			h.GameID,
			strconv.Itoa(h.RatingBefore),
			strconv.Itoa(h.RatingAfter),
			fmt.Sprintf("%+d", h.RatingAfter-h.RatingBefore),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(history).Render()
}

func handleExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := a.Games.Export()
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	pterm.Success.Printfln("Exported to %s.", *out)
	return nil
}

func handleImport(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ohhellctl import <file>")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Games.Import(auth.RoleAdmin, raw); err != nil {
		return err
	}
	n := a.Games.Flush(ctx)
	pterm.Success.Printfln("Imported %d players and %d games (%d writes).",
		len(a.Games.ListPlayers()), len(a.Games.ListGames()), n)
	return nil
}

func handleRecalc(ctx context.Context, args []string) error {
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	before := make(map[string]int)
	for _, p := range a.Games.ListPlayers() {
		before[p.ID] = p.Rating
	}
	players, err := a.Games.RecalculateRatings(auth.RoleAdmin)
	if err != nil {
		return err
	}
	a.Games.Flush(ctx)

	data := pterm.TableData{{"Player", "Before", "After"}}
	for _, p := range players {
		data = append(data, []string{p.Name, strconv.Itoa(before[p.ID]), strconv.Itoa(p.Rating)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Success.Println("Ratings rebuilt.")
	return nil
}

func handleHashPassword(ctx context.Context, args []string) error {
	pterm.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	pterm.Println()
	if err != nil {
		return err
	}
	if len(pw) == 0 {
		return fmt.Errorf("empty password")
	}
	h, err := auth.HashPassword(string(pw))
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}
