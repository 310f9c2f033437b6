package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/renderiq/render-server/internal/app"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the render server",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 8881, "Port to run the server on")
	flags.String("host", "localhost", "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.String("filesystem-type", "local", "Filesystem type: 'local' or 's3'")
	flags.String("public-dir", "", "Path where static files should be served from")

	flags.String("db-driver", "sqlite", "Database driver: 'sqlite' or 'pg'")
	flags.String("db-dsn", "file:./data/main.db", "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker. Example: pulsar+ssl://my-cluster.streamnative.cloud:6651")

	flags.String("generator-base-url", "", "Base URL of the generation backend")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-vanity-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	viper.BindPFlags(flags)

	bindEnvs()
}

func bindEnvs() {
	// Core settings (will use RENDER_ prefix)
	// Example: RENDER_PORT
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("filesystem_type")
	viper.BindEnv("public_dir")

	viper.BindEnv("db.driver")
	viper.BindEnv("db.dsn")
	viper.BindEnv("pulsar.url")

	viper.BindEnv("generator.base_url")
	viper.BindEnv("generator.api_key", "GENERATOR_API_KEY")

	// S3 environment bindings (will automatically use RENDER_ prefix)
	// example: RENDER_S3_ACCESS_KEY
	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.region_name")
	viper.BindEnv("s3.bucket_name")
	viper.BindEnv("s3.folder")
	viper.BindEnv("s3.vanity_url")
	viper.BindEnv("s3.endpoint_url")

	// External API services (does NOT use RENDER_ prefix)
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
}

func runApp(_ *cobra.Command, _ []string) error {
	app, err := createNewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := runServer(app)
	if err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			fmt.Println("Server stopped successfully")
			return nil
		}
		return err
	}

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	<-signalc

	return srv.Stop(app.Context())
}

func createNewApp() (*app.App, error) {
	return app.NewApp(
		config.MustGetConfig(),
		app.WithMQ(),
		app.WithDBInitialization(),
		app.WithFileUploader(),
		app.WithPipeline(),
		app.WithNotifier(),
	)
}

func runServer(app *app.App) (*server.Server, error) {
	srv, err := server.NewServer(app.Config())
	if err != nil {
		return nil, err
	}

	// Setup the server routes
	srv.SetupRoutes(app)

	errc := make(chan error, 1)
	go func() {
		fmt.Printf("Render server started on port %v\n", app.Config().Port)
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		return nil, err
	default:
		return srv, nil
	}
}
