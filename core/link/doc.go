// Package link wires storages, engines and workers together.
//
// A Link pairs the local storage with one remote storage. Its ID is
// "local::<remote ID>". The link owns the reconcile engine of the pair:
// tasks the engine issues get the engine's ack callback attached and are
// put on the shared queue, and the persisted state of the link is loaded
// before the engine starts and saved periodically and on shutdown.
//
// A Graph holds every link of the process. It owns the worker pool that
// consumes the shared queue and resolves (link, storage) pairs to the
// storages and event sinks the workers need.
//
// # Usage
//
//	q := queue.New(logger)
//	g := link.NewGraph(link.Config{Worker: workerCfg}, q, stateStore, notifier, logger)
//	_, err := g.Add(localStore, s3Store)
//	err = g.Start(ctx)
//	defer g.Stop(context.Background())
package link
