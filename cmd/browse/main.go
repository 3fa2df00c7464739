package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"zeptobook/internal/catalog"
	"zeptobook/internal/config"
	"zeptobook/internal/web"
	"zeptobook/internal/wishlist"
)

// cliScope is the storage scope of the terminal wishlist
const cliScope = "cli"

type options struct {
	search       string
	genre        string
	page         int
	toggle       int
	showWishlist bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "browse",
		Short:         "Browse the book catalog in the terminal",
		Long:          `Fetches the catalog once, prints one page of it and optionally toggles a book in the wishlist.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.search, "search", "", "case-insensitive title search")
	cmd.Flags().StringVar(&opts.genre, "genre", "", "only books with this exact subject")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page to print")
	cmd.Flags().IntVar(&opts.toggle, "toggle", 0, "book id to add to or remove from the wishlist")
	cmd.Flags().BoolVar(&opts.showWishlist, "wishlist", false, "print the wishlist instead of the catalog")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	_, thisFile, _, _ := runtime.Caller(0)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	err = cfg.SetupLogging(path.Dir(path.Dir(path.Dir(thisFile))), nil)
	if err != nil {
		return err
	}

	repo, closeStorage, err := cfg.OpenStorage(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer closeStorage()

	ws := &wishlist.Store{Repo: repo, Logger: slog.Default()}

	if opts.showWishlist && opts.toggle == 0 {
		wl, err := ws.Load(ctx, cliScope)
		if err != nil {
			return err
		}

		return web.WriteWishlistText(os.Stdout, wl)
	}

	resp, err := cfg.NewSource(slog.Default()).Fetch(ctx)
	if err != nil {
		fmt.Println("Failed to load")
		return fmt.Errorf("fetching catalog: %w", err)
	}

	var wl *wishlist.Wishlist
	if opts.toggle != 0 {
		var wishlisted bool
		wl, wishlisted, err = ws.ToggleById(ctx, cliScope, opts.toggle, resp.Results)
		if err != nil {
			return err
		}

		if wishlisted {
			fmt.Printf("Added book %d to the wishlist\n\n", opts.toggle)
		} else {
			fmt.Printf("Removed book %d from the wishlist\n\n", opts.toggle)
		}
	} else {
		wl, err = ws.Load(ctx, cliScope)
		if err != nil {
			return err
		}
	}

	if opts.showWishlist {
		return web.WriteWishlistText(os.Stdout, wl)
	}

	br := catalog.NewBrowser()
	br.ClampPage = cfg.ClampPage

	view := br.Derive(resp, catalog.State{
		Filter:      catalog.Filter{SearchTerm: opts.search, SelectedGenre: opts.genre},
		CurrentPage: opts.page,
	})

	return web.WriteText(os.Stdout, view, wl)
}
