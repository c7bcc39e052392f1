package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/wallet-custody-backend/api"
	"github.com/ruteri/wallet-custody-backend/api/metadata"
	"github.com/ruteri/wallet-custody-backend/api/sharenodes"
	"github.com/ruteri/wallet-custody-backend/cmd/flags"
	"github.com/ruteri/wallet-custody-backend/httpserver"
	"github.com/ruteri/wallet-custody-backend/interfaces"
	"github.com/urfave/cli/v2"
)

var StubServiceLogFlag = flags.LogServiceFlagFn("share-nodes")

var StubListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8081",
	Usage: "address to listen on for the stub services",
}

var StubPublicURLFlag = &cli.StringFlag{
	Name:  "public-url",
	Usage: "base URL announced for the share nodes, defaults to http://<listen-addr>",
}

var StubNodesFlag = &cli.IntFlag{
	Name:  "nodes",
	Value: 3,
	Usage: "number of share nodes",
}

var StubOfflineNodesFlag = &cli.IntSliceFlag{
	Name:  "offline-nodes",
	Usage: "indices of nodes answering 503",
}

var StubCorruptNodesFlag = &cli.IntSliceFlag{
	Name:  "corrupt-nodes",
	Usage: "indices of nodes acknowledging wrong shares",
}

// stubRoutes serves the metadata service, the share generator and the share nodes.
type stubRoutes struct {
	metadata  *metadata.StubServer
	generator *sharenodes.StubGenerator
	nodes     []*sharenodes.StubNode
}

func (s *stubRoutes) RegisterRoutes(r chi.Router) {
	r.Route("/metadata", s.metadata.RegisterRoutes)
	r.Handle("/shares", s.generator)
	for i, node := range s.nodes {
		r.Handle(nodePath(i), node)
	}
}

func nodePath(i int) string {
	return fmt.Sprintf("/nodes/%d", i)
}

func main() {
	app := &cli.App{
		Name:  "share-nodes",
		Usage: "Serve a local metadata service and share node network for development",
		Flags: append([]cli.Flag{StubListenAddrFlag, StubPublicURLFlag, StubNodesFlag, StubOfflineNodesFlag, StubCorruptNodesFlag, StubServiceLogFlag}, flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(StubListenAddrFlag.Name)
			publicURL := cCtx.String(StubPublicURLFlag.Name)
			if publicURL == "" {
				publicURL = "http://" + listenAddr
			}

			logger := flags.SetupLogger(cCtx)

			n := cCtx.Int(StubNodesFlag.Name)
			if n < 1 {
				return fmt.Errorf("invalid node count %d", n)
			}

			routes := &stubRoutes{metadata: metadata.NewStubServer(logger)}
			shares := make([]interfaces.NodeShare, 0, n)
			for i := 0; i < n; i++ {
				routes.nodes = append(routes.nodes, sharenodes.NewStubNode(logger))
				shares = append(shares, interfaces.NodeShare{
					NodeURL:    publicURL + nodePath(i),
					ShareIndex: fmt.Sprintf("%x", i+1),
				})
			}
			routes.generator = sharenodes.NewStubGenerator(shares)

			for _, i := range cCtx.IntSlice(StubOfflineNodesFlag.Name) {
				if i < 0 || i >= n {
					return fmt.Errorf("offline node %d out of range", i)
				}
				routes.nodes[i].SetFault(sharenodes.FaultOffline)
			}
			for _, i := range cCtx.IntSlice(StubCorruptNodesFlag.Name) {
				if i < 0 || i >= n {
					return fmt.Errorf("corrupt node %d out of range", i)
				}
				routes.nodes[i].SetFault(sharenodes.FaultCorrupt)
			}

			server, err := httpserver.New(&api.HTTPServerConfig{
				ListenAddr:               listenAddr,
				Log:                      logger,
				GracefulShutdownDuration: 5 * time.Second,
				ReadTimeout:              30 * time.Second,
				WriteTimeout:             30 * time.Second,
			}, nil, routes)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Stub services configured",
				"metadataURL", publicURL+"/metadata",
				"generateSharesURL", publicURL+"/shares",
				"nodes", n)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit

			server.Shutdown()
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
