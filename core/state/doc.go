// Package state persists what a sync engine needs to survive a restart.
//
// Only the durable part of the namespace tree is stored: the desired
// storages and the equivalence maps of every node (tree.Model). Observed
// storage properties are never written; both storage trees are fetched
// again when a link starts and the engine re-evaluates every node against
// the loaded equivalents.
//
// The store is a single bbolt file with one bucket, SyncState, holding one
// JSON document per link ID.
//
// # Usage
//
//	st, err := state.Open("/var/lib/cloudsync/state.db")
//	m, err := st.Load("local::s3")
//	if errors.Is(err, state.ErrNotFound) {
//		// first start
//	}
//	err = st.Save("local::s3", engineModel)
package state
