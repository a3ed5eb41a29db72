package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"cloudsync/core/backend"
	"cloudsync/core/synctask"

	"go.uber.org/zap"
)

// compareChunk is the read size used while hashing.
const compareChunk = 512 * 1024

// dirGroup is the hash shared by every directory participant.
const dirGroup = "dir"

func (p *Pool) execute(ctx context.Context, t synctask.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing %s: %v", t.DisplayName(), r)
		}
	}()

	switch task := t.(type) {
	case *synctask.UploadTask:
		return p.copy(ctx, task, true)
	case *synctask.DownloadTask:
		return p.copy(ctx, task, false)
	case *synctask.CreateDirTask:
		return p.createDir(ctx, task)
	case *synctask.DeleteTask:
		return p.delete(ctx, task)
	case *synctask.MoveTask:
		return p.move(ctx, task)
	case *synctask.CompareTask:
		return p.compare(ctx, task)
	case *synctask.FetchTreeTask:
		return p.fetchTree(ctx, task)
	case *synctask.CancelTask:
		return backend.E(backend.CodeInvalidOperation, "execute", nil, errors.New("cancel tasks are never executed"))
	default:
		return backend.E(backend.CodeInvalidOperation, "execute", nil, fmt.Errorf("unknown task kind %s", t.Kind()))
	}
}

func (p *Pool) copy(ctx context.Context, t synctask.CopyTask, upload bool) error {
	tr := t.Copy()
	link := t.Info().LinkID

	if upload {
		if err := p.cfg.Policy.CheckName(tr.TargetPath); err != nil {
			return err
		}
	}

	source, err := p.resolver.Storage(link, tr.SourceStorageID)
	if err != nil {
		return err
	}
	target, err := p.resolver.Storage(link, tr.TargetStorageID)
	if err != nil {
		return err
	}

	rc, err := source.OpenRead(ctx, tr.SourcePath, tr.SourceVersionID)
	if err != nil {
		return err
	}
	defer rc.Close()

	tr.BytesTransferred = 0
	var r io.Reader = &cancelReader{ctx: ctx, r: rc, task: t.Info(), count: &tr.BytesTransferred}
	if upload {
		if r, err = p.cfg.Policy.CheckContent(tr.TargetPath, r); err != nil {
			return err
		}
	}

	version, err := target.Write(ctx, tr.TargetPath, r, tr.OriginalVersionID, tr.Size)
	if err != nil {
		return err
	}
	tr.TargetVersionID = version
	return nil
}

func (p *Pool) createDir(ctx context.Context, t *synctask.CreateDirTask) error {
	target, err := p.resolver.Storage(t.LinkID, t.TargetStorageID)
	if err != nil {
		return err
	}
	version, err := target.MakeDir(ctx, t.TargetPath)
	if err != nil {
		return err
	}
	t.TargetVersionID = version
	return nil
}

func (p *Pool) delete(ctx context.Context, t *synctask.DeleteTask) error {
	target, err := p.resolver.Storage(t.LinkID, t.TargetStorageID)
	if err != nil {
		return err
	}
	err = target.Delete(ctx, t.TargetPath, t.OriginalVersionID)
	if errors.Is(err, backend.ErrNotFound) {
		// Already gone is what we wanted.
		return nil
	}
	return err
}

func (p *Pool) move(ctx context.Context, t *synctask.MoveTask) error {
	s, err := p.resolver.Storage(t.LinkID, t.StorageID)
	if err != nil {
		return err
	}
	version, err := s.Move(ctx, t.SourcePath, t.TargetPath, t.SourceVersionID, "")
	if err != nil {
		return err
	}
	t.TargetVersionID = version
	return nil
}

func (p *Pool) compare(ctx context.Context, t *synctask.CompareTask) error {
	byHash := make(map[string][]string)
	for _, part := range t.Participants {
		if part.IsDir {
			byHash[dirGroup] = append(byHash[dirGroup], part.StorageID)
			continue
		}
		sum, err := p.hash(ctx, t, part)
		if err != nil {
			return err
		}
		byHash[sum] = append(byHash[sum], part.StorageID)
	}

	groups := make([][]string, 0, len(byHash))
	for _, ids := range byHash {
		slices.Sort(ids)
		groups = append(groups, ids)
	}
	slices.SortFunc(groups, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	t.Groups = groups
	return nil
}

func (p *Pool) hash(ctx context.Context, t *synctask.CompareTask, part synctask.Participant) (string, error) {
	s, err := p.resolver.Storage(t.LinkID, part.StorageID)
	if err != nil {
		return "", err
	}
	rc, err := s.OpenRead(ctx, part.Path, part.VersionID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	buf := make([]byte, compareChunk)
	if _, err := io.CopyBuffer(h, &cancelReader{ctx: ctx, r: rc, task: t.Info()}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (p *Pool) fetchTree(ctx context.Context, t *synctask.FetchTreeTask) error {
	s, err := p.resolver.Storage(t.LinkID, t.StorageID)
	if err != nil {
		return err
	}
	sink, err := p.resolver.EventSink(t.LinkID)
	if err != nil {
		return err
	}

	snap, err := s.GetTree(ctx, false)
	if err != nil {
		return err
	}
	// A re-fetch after going offline restarts the event source.
	if err := s.StopEvents(true); err != nil {
		p.logger.Warn("Stopping events failed", zap.String("storage", t.StorageID), zap.Error(err))
	}
	if err := s.StartEvents(ctx, sink); err != nil {
		return err
	}
	t.Tree = snap
	return nil
}
