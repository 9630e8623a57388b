package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackline/trackline/api"
	"github.com/trackline/trackline/render"
	"github.com/trackline/trackline/session"
	"github.com/trackline/trackline/sqlite"
)

var (
	serveAddr     string
	serveDB       string
	serveName     string
	serveExports  string
	serveOrigins  []string
	serveAutosave time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] [project]",
	Short: "Serve a session over HTTP",
	Long: `Serve a session over HTTP.

The session starts from the given project file, or from the project stored
under --name in the database, or empty. Every change is saved to the
database after --autosave of inactivity.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sqlite.Open(serveDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts := []session.Option{session.WithStore(store), session.WithAutosaveDelay(serveAutosave)}
		name := serveName
		if len(args) == 1 {
			p, err := loadProject(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = p.Name
			}
			opts = append(opts, session.WithProject(p))
		} else if name != "" {
			p, err := store.LoadProject(cmd.Context(), name)
			switch {
			case err == nil:
				opts = append(opts, session.WithProject(p))
			case errors.Is(err, sqlite.ErrNotFound):
				logrus.WithField("project", name).Info("new project")
			default:
				return err
			}
		} else {
			name = "untitled"
		}
		if err := os.MkdirAll(serveExports, os.ModePerm); err != nil {
			return pkgerrors.Wrapf(err, "could not create export directory %v", serveExports)
		}
		s, err := session.New(name, render.NewEnginer(renderOptions()...), opts...)
		if err != nil {
			return err
		}
		defer s.Close()
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           api.NewServer(s, serveExports, api.WithAllowedOrigins(serveOrigins...)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logrus.WithFields(logrus.Fields{"addr": serveAddr, "session": name}).Info("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the projects stored in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sqlite.Open(serveDB)
		if err != nil {
			return err
		}
		defer store.Close()
		infos, err := store.Projects(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, info := range infos {
			exports, err := store.Exports(cmd.Context(), info.Name)
			if err != nil {
				return err
			}
			cmd.Printf("%-24s %6.1f bpm %3d tracks  %s  %d exports\n", info.Name, info.BPM, info.Tracks, info.Updated.Local().Format(time.DateTime), len(exports))
			if len(exports) > 0 {
				last := exports[len(exports)-1]
				writeExport(out, last)
			}
		}
		return nil
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", "localhost:8080", "address to listen on")
	f.StringVar(&serveName, "name", "", "session name; also the key of the project in the database")
	f.StringVar(&serveExports, "exports", "exports", "directory where exports are written")
	f.StringSliceVar(&serveOrigins, "origin", nil, "allowed CORS origins")
	f.DurationVar(&serveAutosave, "autosave", session.DefaultAutosaveDelay, "save the project after this long without changes")
	for _, c := range []*cobra.Command{serveCmd, projectsCmd} {
		c.Flags().StringVar(&serveDB, "db", "trackline.db", "sqlite database file")
		rootCmd.AddCommand(c)
	}
}
