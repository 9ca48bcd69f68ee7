package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/internal/version"
	"github.com/staffsense/staffsense/server"
	"github.com/staffsense/staffsense/store"
	"github.com/staffsense/staffsense/store/db"
)

const greetingBanner = `StaffSense - conversational workforce forecasting`

var (
	rootCmd = &cobra.Command{
		Use:   "staffsense",
		Short: "Conversational assistant for workforce forecast data",
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := &profile.Profile{
				Mode:      viper.GetString("mode"),
				Addr:      viper.GetString("addr"),
				Port:      viper.GetInt("port"),
				Data:      viper.GetString("data"),
				Driver:    viper.GetString("driver"),
				DSN:       viper.GetString("dsn"),
				JWTSecret: viper.GetString("jwt-secret"),
				Version:   version.GetCurrentVersion(viper.GetString("mode")),
			}
			instanceProfile.FromEnv()
			if err := instanceProfile.Validate(); err != nil {
				fmt.Printf("invalid configuration: %+v\n", err)
				return
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create db driver", slog.Any("error", err))
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				cancel()
				slog.Error("failed to migrate", slog.Any("error", err))
				return
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				cancel()
				slog.Error("failed to create server", slog.Any("error", err))
				return
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigc
				slog.Info("received signal, shutting down", slog.String("signal", sig.String()))
				s.Shutdown(ctx)
				cancel()
			}()

			fmt.Println(greetingBanner)
			if err := s.Start(ctx); err != nil {
				if err != http.ErrServerClosed {
					slog.Error("failed to start server", slog.Any("error", err))
				}
				cancel()
			}

			// Wait for Ctrl+C.
			<-ctx.Done()
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func init() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("staffsense")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("jwt-secret", "", "secret signing the chat access tokens")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn", "jwt-secret"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
