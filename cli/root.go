// Package cli wires the tile-world server's collaborators together and
// exposes the process as a single cobra command: load configuration,
// open the persistence gateway, build the entity registry and spatial
// index, wire the account domain's handlers onto the transport boundary,
// and run the tick scheduler and the WebSocket listener until asked to
// stop.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"tileworld.dev/server/account"
	"tileworld.dev/server/cache"
	httpx "tileworld.dev/server/http"

	"tileworld.dev/server/common"
	"tileworld.dev/server/config"
	"tileworld.dev/server/db"
	"tileworld.dev/server/gateway"
	"tileworld.dev/server/registry"
	"tileworld.dev/server/scheduler"
	"tileworld.dev/server/session"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/syncmodel"
	"tileworld.dev/server/track"
)

// envPrefix is the prefix every WorldConfig environment variable is read
// under (e.g. TILEWORLD_DATABASE_URL).
const envPrefix = "TILEWORLD"

// RootCmd is the server's single entry point: no subcommands, since this
// process has exactly one job — serve the world.
var RootCmd = &cobra.Command{
	Use:   "tileworld-server",
	Short: "Runs the tile-world real-time game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

// Execute runs the root command, the package's sole exported entry point.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().Int("port", httpx.GetPortInt(os.Getenv("PORT"), 8080), "WebSocket listener port")
}

func run() error {
	log := common.ServiceLogger("tileworld-server", "0.1.0")

	cfg := config.LoadWorldConfig(envPrefix)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Infof("connecting to database %s", common.MaskSecret(cfg.DatabaseURL))

	gw, err := db.Open(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := gw.AutoMigrate(account.SchemaModels()...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	c := cache.New(cfg.CacheDefaultDuration)
	tracker := track.New()
	sessions := session.New()

	stores := account.NewStores(c, gw, tracker)
	sm := spatial.NewManager(c, cfg.SubzoneSizeX, cfg.SubzoneSizeY, stores.SpatialLoader(gw), log)
	models := syncmodel.NewRegistry()

	engine, err := account.NewEngine(account.Config{
		Stores:   stores,
		Gateway:  gw,
		Tracker:  tracker,
		Sessions: sessions,
		Spatial:  sm,
		Models:   models,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("build account engine: %w", err)
	}

	dispatcher := registry.NewDispatcher()
	dispatcher.Register(stores.Accounts)
	dispatcher.Register(stores.Users)
	dispatcher.Register(stores.Messages)

	synchronizer := syncmodel.NewSynchronizer(tracker, models, sm, "user", log)

	router := gateway.NewRouter(sessions, log)
	sched := scheduler.New(cfg.TickFrequency, log)
	engine.Wire(router, sched)

	sched.Add("sync", cfg.SyncFrequency, 0, func(ctx context.Context, _ time.Duration) error {
		gateway.EmitSync(sessions, synchronizer.Tick(ctx))
		return nil
	})
	sched.Add("db_flush", cfg.DBFlushFrequency, 20, func(ctx context.Context, _ time.Duration) error {
		return dispatcher.Flush(ctx, tracker)
	})
	sched.Add("cache_clean", cfg.CacheCleanFrequency, 30, func(ctx context.Context, _ time.Duration) error {
		c.Clean()
		return nil
	})

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	port, _ := RootCmd.PersistentFlags().GetInt("port")
	runCfg := httpx.DefaultRunServerConfig("tileworld-server", "tileworld-server", "0.1.0")
	runCfg.Port = port
	runCfg.BodyLimit = "1M"
	runCfg.Logger = log

	log.Infof("accepting WebSocket frames up to %s on port %d", humanize.Bytes(1<<20), port)
	err = httpx.RunServer(runCfg, wireWebSocketRoute(router))

	cancelSched()
	sched.Stop()
	return err
}

var nextSocketID atomic.Int64

// wireWebSocketRoute returns the httpx.SetupFunc that adds the single /ws
// upgrade endpoint to the Echo instance httpx.RunServer builds: every
// connection becomes a gateway.Socket dispatched through router until it
// errors or closes.
func wireWebSocketRoute(router *gateway.Router) httpx.SetupFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(e *echo.Echo) error {
		e.GET("/ws", func(c echo.Context) error {
			conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
			if err != nil {
				return err
			}
			conn.SetReadLimit(1 << 20)
			sock := gateway.NewSocket(nextSocketID.Add(1), conn)
			ctx := c.Request().Context()
			for {
				if err := router.Dispatch(ctx, sock); err != nil {
					break
				}
			}
			router.CloseSocket(sock)
			return nil
		})
		return nil
	}
}
