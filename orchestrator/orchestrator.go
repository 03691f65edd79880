/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package orchestrator implements §4.5's filter orchestrator (C8): the
// top-level algorithm that, given a vecfilter.FilterRequest, resolves
// layers, picks backends via the factory (C11), normalizes and buffers
// the source geometry (C1), consults the result cache (C9), drives one
// or more backend sessions (C4-C7) to apply the filter, and records the
// outcome in history (C10).
//
// Core is the explicit context struct spec.md §9's design notes call
// for in place of the source's module-level singletons: it owns the
// cache, the history store, and every backend session opened so far,
// and is the sole mutator of all three, matching §5's concurrency
// model.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
	"github.com/spatialmodel/vecfilter/backend/ogr"
	"github.com/spatialmodel/vecfilter/config"
	"github.com/spatialmodel/vecfilter/expr"
	"github.com/spatialmodel/vecfilter/geomutil"
	"github.com/spatialmodel/vecfilter/history"
	"github.com/spatialmodel/vecfilter/internal/fingerprint"
	"github.com/spatialmodel/vecfilter/resultcache"
	"github.com/spatialmodel/vecfilter/task"
)

// Core is the engine's top-level, explicit-state context. One Core is
// built per plugin/session lifetime (§3's "Backend session" is
// process-scoped in exactly this sense) and is shared by every request
// the host issues.
type Core struct {
	Host    vecfilter.Host
	Factory *backend.Factory
	Cache   *resultcache.Cache
	History *history.Store
	Runner  *task.Runner
	Config  config.Config

	// Clock is injectable for deterministic tests, following the
	// teacher's use of an injectable Outputter function value in io.go
	// rather than calling time.Now directly throughout.
	Clock func() time.Time

	log *logrus.Entry

	mu       sync.Mutex
	sessions map[vecfilter.BackendKind]backend.Session
}

// NewCore builds a Core over host and factory with the given
// configuration. It wires Cache and History from cfg's capacities and
// registers itself for the host's layer-edit/layer-removed callbacks
// per §5's "layer-external mutation" rule.
func NewCore(host vecfilter.Host, factory *backend.Factory, cfg config.Config, log *logrus.Entry) *Core {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Core{
		Host:     host,
		Factory:  factory,
		Config:   cfg,
		Clock:    time.Now,
		log:      log,
		sessions: make(map[vecfilter.BackendKind]backend.Session),
	}
	if factory != nil {
		factory.SetPostgresEnabled(cfg.BackendPostgreSQLEnabled)
	}
	c.Cache = resultcache.New(intOrDefault(cfg.CacheCapacity, 128), nil)
	c.History = history.New(intOrDefault(cfg.HistoryCapacity, 100))
	c.Runner = task.New(log)

	if host != nil {
		host.OnLayerEdited(func(ref vecfilter.LayerRef) {
			c.Cache.InvalidateLayer(ref)
		})
		host.OnLayerRemoved(func(ref vecfilter.LayerRef) {
			c.Cache.InvalidateLayer(ref)
			c.History.ClearLayer(ref)
		})
	}
	return c
}

func intOrDefault(v uint, def int) int {
	if v == 0 {
		return def
	}
	return int(v)
}

// Shutdown tears down every open backend session (LIFO is not
// meaningful across distinct backend kinds, so each is independent) and
// clears the cache, per §4.6/§4.9's "destroyed on plugin shutdown"
// rule.
func (c *Core) Shutdown(ctx context.Context) {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[vecfilter.BackendKind]backend.Session)
	c.mu.Unlock()

	for kind, s := range sessions {
		c.log.WithField("backend", kind).Info("cleaning up backend session on shutdown")
		s.Cleanup(ctx)
	}
	c.Cache.Clear()
}

// Reset drops the given backend's session without destroying the cache
// or history, per an explicit user-requested "reset".
func (c *Core) Reset(ctx context.Context, kind vecfilter.BackendKind) {
	c.mu.Lock()
	s, ok := c.sessions[kind]
	if ok {
		delete(c.sessions, kind)
	}
	c.mu.Unlock()
	if ok {
		s.Cleanup(ctx)
	}
}

// Run executes req synchronously through the six-step algorithm of
// §4.5 and returns the resulting FilterOutcome. Use RunCancellable for
// the cooperative, cancellable form described in §4.9.
func (c *Core) Run(ctx context.Context, req vecfilter.FilterRequest) (vecfilter.FilterOutcome, error) {
	return c.run(ctx, req, nil)
}

// RunCancellable schedules req on the task Runner under the source
// layer's single-flight slot, reporting progress through onProgress at
// each suspension point named in §4.9 (after prepare_source, after each
// apply_filter, before history push). The returned Task's Wait yields
// the FilterOutcome's error; callers that need the outcome value itself
// should call Run directly when cancellation support isn't required.
func (c *Core) RunCancellable(ctx context.Context, req vecfilter.FilterRequest, onProgress func(task.Progress)) *task.Task {
	return c.Runner.Start(ctx, string(req.SourceLayerRef), func(runCtx context.Context, ctl *task.Control) error {
		_, err := c.run(runCtx, req, ctl)
		return err
	}, onProgress)
}

// run is the shared implementation behind Run/RunCancellable. ctl is
// nil for the uncancellable path.
func (c *Core) run(ctx context.Context, req vecfilter.FilterRequest, ctl *task.Control) (vecfilter.FilterOutcome, error) {
	start := c.Clock()

	// Step 1: validate and resolve the source layer.
	srcHandle, srcDesc, err := c.resolveLayer(req.SourceLayerRef)
	if err != nil {
		return vecfilter.FilterOutcome{}, err
	}

	// Step 2 (source side): pick the backend that will materialize the
	// probe geometry. The source session does not itself evaluate
	// predicates, so no capability requirement is placed on it here;
	// each target negotiates its own backend's predicate support below.
	srcSess, srcKind, err := c.openSourceSession(ctx, srcDesc)
	if err != nil {
		return vecfilter.FilterOutcome{}, err
	}

	// Step 3: build and normalize the source geometry, compute its
	// canonical WKT.
	srcWKT, srid, err := c.buildSourceGeometry(ctx, srcHandle, srcDesc, srcKind, req)
	if err != nil {
		return vecfilter.FilterOutcome{}, err
	}

	srcPrepared, err := srcSess.PrepareSource(ctx, srcWKT, srid)
	if err != nil {
		return vecfilter.FilterOutcome{}, err
	}

	if cerr := checkpoint(ctl, 10, "source prepared"); cerr != nil {
		c.rollback(ctx, srcSess)
		return vecfilter.FilterOutcome{}, cancelledDuring(req.SourceLayerRef, "prepare_source")
	}

	// Step 4: apply to every target layer, in request order.
	outcome := vecfilter.FilterOutcome{}
	global := vecfilter.GlobalFilterState{States: map[vecfilter.LayerRef]vecfilter.FilterState{}, Timestamp: start}
	touchedTarget := false

	n := len(req.TargetLayerRefs)
	for i, targetRef := range req.TargetLayerRefs {
		tStart := c.Clock()

		lo, err := c.filterOneTarget(ctx, req, targetRef, srcWKT, srid, srcSess, srcPrepared, srcKind)
		if err != nil {
			return vecfilter.FilterOutcome{}, err
		}
		lo.WallClock = c.Clock().Sub(tStart)
		outcome.PerLayer = append(outcome.PerLayer, lo)
		global.States[targetRef] = lo.State
		touchedTarget = true

		pct := 10 + int(80*float64(i+1)/float64(max(n, 1)))
		if cerr := checkpoint(ctl, pct, fmt.Sprintf("applied filter to %s", targetRef)); cerr != nil {
			c.rollback(ctx, srcSess)
			return vecfilter.FilterOutcome{}, cancelledDuring(targetRef, "apply_filter")
		}
	}

	if cerr := checkpoint(ctl, 95, "recording history"); cerr != nil {
		c.rollback(ctx, srcSess)
		return vecfilter.FilterOutcome{}, cancelledDuring(req.SourceLayerRef, "history push")
	}

	// The results reach the host only once no checkpoint can cancel the
	// request any more.
	for i, targetRef := range req.TargetLayerRefs {
		if targetHandle, _, ok := c.Host.GetLayer(targetRef); ok {
			if aerr := applyToHost(c.Host, targetHandle, outcome.PerLayer[i].State); aerr != nil {
				c.Host.ReportMessage(vecfilter.MessageError, fmt.Sprintf("filter failed for layer %s: applying result: %s", targetRef, aerr))
			}
		}
	}

	// Step 5: push history atomically.
	sourceState := vecfilter.FilterState{
		LayerRef:    req.SourceLayerRef,
		Backend:     srcKind,
		Kind:        vecfilter.KindSubsetString,
		SubsetExpr:  req.SourceExpression,
		Timestamp:   start,
		Description: "source probe expression",
	}
	global.States[req.SourceLayerRef] = sourceState

	if touchedTarget {
		c.History.PushRequest(req.SourceLayerRef, global)
	} else {
		c.History.PushSourceOnly(sourceState)
	}

	checkpoint(ctl, 100, "done")

	// Step 6: return the outcome (already populated above).
	return outcome, nil
}

func cancelledDuring(ref vecfilter.LayerRef, where string) error {
	return &vecfilter.FilterError{Kind: vecfilter.Cancelled, LayerRef: ref, Message: "cancelled after " + where}
}

// checkpoint is a nil-safe wrapper around ctl.Checkpoint.
func checkpoint(ctl *task.Control, pct int, text string) error {
	if ctl == nil {
		return nil
	}
	return ctl.Checkpoint(task.Progress{Percent: pct, Text: text})
}

// rollback drops any artifacts sess created during the current step
// without destroying the session itself, per §5's cancellation
// semantics: "any materialised view / temp table created by the
// cancelled request is dropped."
func (c *Core) rollback(ctx context.Context, sess backend.Session) {
	if err := sess.Reset(ctx); err != nil {
		c.log.WithError(err).Warn("rollback: session reset reported an error; continuing")
	}
}

func (c *Core) resolveLayer(ref vecfilter.LayerRef) (vecfilter.LayerHandle, vecfilter.LayerDescriptor, error) {
	handle, desc, ok := c.Host.GetLayer(ref)
	if !ok || desc == nil || !desc.Filterable() {
		return nil, vecfilter.LayerDescriptor{}, &vecfilter.FilterError{
			Kind:     vecfilter.LayerNotFilterable,
			LayerRef: ref,
			Message:  "layer is missing a resolvable geometry column, SRID, or primary key",
		}
	}
	return handle, *desc, nil
}

// openSourceSession selects and opens the backend session that will
// materialize the source probe geometry. No predicate capability is
// required of it — that negotiation happens per-target.
func (c *Core) openSourceSession(ctx context.Context, desc vecfilter.LayerDescriptor) (backend.Session, vecfilter.BackendKind, error) {
	provider := backend.ClassifyProviderURI(desc.ProviderURI)
	port, err := c.Factory.Select(desc, provider, nil)
	if err != nil {
		return nil, vecfilter.BackendUnknown, err
	}
	sess, err := c.sessionFor(ctx, port)
	if err != nil {
		return nil, port.Kind(), err
	}
	return sess, port.Kind(), nil
}

// openTargetSession implements §4.8 rule 4's CapabilityMismatch retry:
// if the backend candidateOrder's first choice cannot evaluate every
// requested predicate, the next candidate is tried, never an arbitrary
// backend outside the order the factory already computed.
func (c *Core) openTargetSession(ctx context.Context, desc vecfilter.LayerDescriptor, preds []vecfilter.Predicate) (backend.Session, vecfilter.BackendKind, error) {
	provider := backend.ClassifyProviderURI(desc.ProviderURI)
	excluded := map[vecfilter.BackendKind]bool{}
	for {
		port, err := c.Factory.Select(desc, provider, excluded)
		if err != nil {
			if len(excluded) > 0 {
				return nil, vecfilter.BackendUnknown, &vecfilter.FilterError{Kind: vecfilter.PredicateNotSupported, LayerRef: desc.Ref, Message: "no candidate backend supports every requested predicate", Cause: err}
			}
			return nil, vecfilter.BackendUnknown, err
		}
		if capErr := backend.RequireCapability(port, preds); capErr != nil {
			c.log.WithFields(logrus.Fields{"layer": desc.Ref, "backend": port.Kind()}).
				Warn("capability mismatch, retrying with the next candidate backend")
			excluded[port.Kind()] = true
			continue
		}
		sess, err := c.sessionFor(ctx, port)
		if err != nil {
			return nil, port.Kind(), err
		}
		return sess, port.Kind(), nil
	}
}

// sessionFor returns the already-open session for port.Kind(), opening
// one (double-checked under lock, so two concurrent first requests for
// the same backend kind never leak a duplicate) if this is the first
// request to need it.
func (c *Core) sessionFor(ctx context.Context, port backend.Port) (backend.Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[port.Kind()]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := port.OpenSession(ctx, vecfilter.LayerDescriptor{})
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.BackendUnavailable, Backend: port.Kind(), Message: err.Error(), Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sessions[port.Kind()]; ok {
		s.Cleanup(ctx)
		return existing, nil
	}
	c.sessions[port.Kind()] = s
	return s, nil
}

// buildSourceGeometry implements the geometry half of step 3: pull the
// source features matching req.SourceExpression, union them into a
// single probe geometry, normalize its CRS, apply centroid reduction and
// buffering, and encode it as canonical WKT.
func (c *Core) buildSourceGeometry(ctx context.Context, handle vecfilter.LayerHandle, desc vecfilter.LayerDescriptor, backendKind vecfilter.BackendKind, req vecfilter.FilterRequest) (wkt string, srid int, err error) {
	attributeWhere, evalr, err := c.translateSourceExpression(req.SourceExpression, backendKind)
	if err != nil {
		return "", 0, err
	}

	feats, errc := c.Host.IterFeatures(ctx, handle, attributeWhere, nil)
	var geoms []geom.Geom
	for f := range feats {
		if evalr != nil {
			ok, everr := evalr.Eval(f.Attrs)
			if everr != nil {
				return "", 0, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, LayerRef: desc.Ref, Message: everr.Error(), Cause: everr}
			}
			if !ok {
				continue
			}
		}
		if g, ok := f.Geometry.(geom.Geom); ok && g != nil {
			geoms = append(geoms, g)
		}
	}
	if ferr := <-errc; ferr != nil {
		return "", 0, &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, LayerRef: desc.Ref, Backend: backendKind, Message: ferr.Error(), Cause: ferr}
	}
	if len(geoms) == 0 {
		return "", 0, &vecfilter.FilterError{Kind: vecfilter.GeometryInvalid, LayerRef: desc.Ref, Message: "source expression matched no features"}
	}

	union := unionGeoms(geoms)
	union = geomutil.Repair(union)
	if geomutil.IsEmpty(union) {
		return "", 0, &vecfilter.FilterError{Kind: vecfilter.GeometryInvalid, LayerRef: desc.Ref, Message: "source geometry is not repairable"}
	}

	asIs := req.CRSPolicy == vecfilter.CRSAsIs
	metric, targetSRID, merr := geomutil.EnsureMetric(union, desc.SRID, asIs)
	if merr != nil {
		return "", 0, &vecfilter.FilterError{Kind: vecfilter.GeometryInvalid, LayerRef: desc.Ref, Message: merr.Error(), Cause: merr}
	}

	if req.UseSourceCentroid {
		if pg, ok := metric.(geom.Polygonal); ok {
			metric = geomutil.Centroid(pg, c.Config.GeometryCentroidMode != vecfilter.CentroidGeometric)
		}
	}

	if req.BufferValue != 0 {
		if c.Config.GeometrySimplifyBeforeBuffer {
			metric = geomutil.SimplifyBeforeBuffer(metric, req.BufferValue)
		}
		buffered := geomutil.Buffer(metric, req.BufferValue)
		if geomutil.IsEmpty(buffered) && req.BufferValue < 0 {
			// Negative buffer eroded the source to nothing; §4.4c's
			// "no negative-buffer guarantee" rule means downstream
			// targets see the universally-false subset, not an error
			// here — buildSourceGeometry still returns a valid (empty)
			// WKT so PrepareSource has something to materialize.
		}
		metric = buffered
	}

	info := geomutil.DetectCRS(targetSRID)
	return geomutil.CanonicalWKT(metric, info.IsGeographic), targetSRID, nil
}

// translateSourceExpression implements §7's
// ExpressionNotTranslatable-then-in-process-eval fallback: on a
// successful Translate, the backend evaluates the WHERE fragment
// itself and evalr is nil; on ExpressionNotTranslatable, attributeWhere
// is left empty (so the host streams every feature) and evalr filters
// in process instead.
func (c *Core) translateSourceExpression(src string, backendKind vecfilter.BackendKind) (string, *expr.Evaluator, error) {
	if src == "" {
		return "", nil, nil
	}
	if err := expr.Sanitize(src); err != nil {
		return "", nil, err
	}
	frag, err := expr.Translate(src, backendKind)
	if err == nil {
		return frag.SQL, nil, nil
	}
	kind, ok := vecfilter.KindOf(err)
	if !ok || kind != vecfilter.ExpressionNotTranslatable {
		return "", nil, err
	}
	evalr, everr := expr.NewEvaluator(src)
	if everr != nil {
		return "", nil, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Message: everr.Error(), Cause: everr}
	}
	return "", evalr, nil
}

// unionGeoms combines a source layer's matching features into a single
// probe geometry: an all-polygonal match set becomes one MultiPolygon,
// anything else (mixed kinds, point layers used as the probe) becomes a
// GeometryCollection, which geomutil.CanonicalWKT and the OGR predicate
// evaluators both accept as a plain multi-geometry operand.
func unionGeoms(geoms []geom.Geom) geom.Geom {
	if len(geoms) == 1 {
		return geoms[0]
	}

	allPolygonal := true
	var polys geom.MultiPolygon
	for _, g := range geoms {
		switch t := g.(type) {
		case geom.Polygon:
			polys = append(polys, t)
		case geom.MultiPolygon:
			polys = append(polys, []geom.Polygon(t)...)
		default:
			allPolygonal = false
		}
	}
	if allPolygonal {
		return polys
	}

	gc := make(geom.GeometryCollection, len(geoms))
	copy(gc, geoms)
	return gc
}

// filterOneTarget implements one iteration of step 4: select the
// target's backend (falling back per CapabilityMismatch), reuse the
// source's already-prepared handle when the target shares the source's
// backend kind (the "prepare_source once, memoised within the request"
// rule), consult the result cache when the backend can produce explicit
// fid sets, and combine with the caller's previous filter state.
func (c *Core) filterOneTarget(
	ctx context.Context,
	req vecfilter.FilterRequest,
	targetRef vecfilter.LayerRef,
	srcWKT string,
	srid int,
	srcSess backend.Session,
	srcPrepared backend.SourceHandle,
	srcKind vecfilter.BackendKind,
) (vecfilter.LayerOutcome, error) {
	_, desc, err := c.resolveLayer(targetRef)
	if err != nil {
		return vecfilter.LayerOutcome{}, err
	}

	sess, kind, err := c.openTargetSession(ctx, desc, req.Predicates)
	if err != nil {
		return vecfilter.LayerOutcome{}, err
	}

	prepared := srcPrepared
	if kind != srcKind {
		prepared, err = sess.PrepareSource(ctx, srcWKT, srid)
		if err != nil {
			return vecfilter.LayerOutcome{}, err
		}
	}

	var prevPtr *vecfilter.FilterState
	if st, ok := req.PreviousFilterState[targetRef]; ok {
		prevPtr = &st
	}

	spec := backend.FilterSpec{
		Source:            prepared,
		Target:            desc,
		Predicates:        req.Predicates,
		BufferValue:       req.BufferValue,
		BufferEndcap:      c.Config.GeometryBufferEndcap,
		UseSourceCentroid: req.UseSourceCentroid,
		UseTargetCentroid: req.UseTargetCentroid,
	}

	// The OGR backend's match step re-scans every feature on every call
	// regardless of Previous/Combine, so it is the one backend where
	// routing through the result cache actually avoids re-running the
	// spatial predicates (§4.6's stated purpose). PostgreSQL and
	// Spatialite push the combine down into the WHERE/subset-string they
	// build in a single query, so calling them with the real
	// Previous/Combine costs nothing extra and keeps each backend's own
	// invalid-to-combine override (§4.4b) in force.
	if kind != vecfilter.BackendOGR {
		spec.Combine = req.CombineOperator
		spec.Previous = prevPtr
		outcome, err := withRetry(func() (vecfilter.FilterOutcome, error) {
			return sess.ApplyFilter(ctx, spec)
		})
		if err != nil {
			return vecfilter.LayerOutcome{}, err
		}
		return outcome.PerLayer[0], nil
	}

	return c.filterOGRTarget(ctx, targetRef, spec, req.CombineOperator, prevPtr, srcWKT, req, sess)
}

func (c *Core) filterOGRTarget(
	ctx context.Context,
	targetRef vecfilter.LayerRef,
	spec backend.FilterSpec,
	combineOp vecfilter.CombineOperator,
	prevPtr *vecfilter.FilterState,
	srcWKT string,
	req vecfilter.FilterRequest,
	sess backend.Session,
) (vecfilter.LayerOutcome, error) {
	fp := fingerprint.Compute(srcWKT, req.Predicates, req.BufferValue, req.UseSourceCentroid, req.UseTargetCentroid, targetRef)
	key := resultcache.Key{Fingerprint: vecfilter.FilterFingerprint(fp), Target: targetRef}

	entry, hit, err := c.Cache.Get(ctx, key, func(ctx context.Context) (resultcache.Entry, error) {
		rawSpec := spec
		rawSpec.Combine = vecfilter.CombineREPLACE
		rawSpec.Previous = nil
		outcome, err := sess.ApplyFilter(ctx, rawSpec)
		if err != nil {
			return resultcache.Entry{}, err
		}
		lo := outcome.PerLayer[0]
		return resultcache.Entry{FIDs: lo.State.FIDs, State: lo.State}, nil
	})
	if err != nil {
		return vecfilter.LayerOutcome{}, err
	}

	combined := combineFIDSets(prevPtr, combineOp, entry.FIDs)
	state := vecfilter.FilterState{
		LayerRef:     targetRef,
		Backend:      vecfilter.BackendOGR,
		Kind:         vecfilter.KindFIDSet,
		SubsetExpr:   ogr.SubsetString(spec.Target.PrimaryKey, combined),
		FIDs:         combined,
		FeatureCount: uint64(combined.Len()),
		Timestamp:    c.Clock(),
	}
	return vecfilter.LayerOutcome{
		LayerRef:    targetRef,
		Backend:     vecfilter.BackendOGR,
		RowsMatched: state.FeatureCount,
		CacheHit:    hit,
		State:       state,
	}, nil
}

// combineFIDSets implements §8.5's combine semantics directly on
// FIDSet, used on the cache-hit/cache-populate path so that AND/OR/
// NOT_AND never re-invoke the backend's own scan.
func combineFIDSets(prev *vecfilter.FilterState, op vecfilter.CombineOperator, next *vecfilter.FIDSet) *vecfilter.FIDSet {
	if prev == nil || prev.FIDs == nil || op == vecfilter.CombineREPLACE {
		return next
	}
	switch op {
	case vecfilter.CombineAND:
		return prev.FIDs.And(next)
	case vecfilter.CombineOR:
		return prev.FIDs.Or(next)
	case vecfilter.CombineNOTAND:
		return prev.FIDs.NotAnd(next)
	default:
		return next
	}
}

// applyToHost presents state to the host as either a subset string or
// an explicit fid set, never both, per §6's "Filter state as presented
// to the host" rule.
func applyToHost(host vecfilter.Host, handle vecfilter.LayerHandle, state vecfilter.FilterState) error {
	if state.Kind == vecfilter.KindFIDSet {
		host.SetSelectedFIDs(handle, state.FIDs)
		return nil
	}
	return host.ApplySubsetString(handle, state.SubsetExpr)
}

// withRetry implements §7's propagation policy: one retry of a
// BackendQueryFailed whose cause looks transient (a locking or
// connection-reset condition), and no retry otherwise.
func withRetry(fn func() (vecfilter.FilterOutcome, error)) (vecfilter.FilterOutcome, error) {
	outcome, err := fn()
	if err == nil {
		return outcome, nil
	}
	kind, ok := vecfilter.KindOf(err)
	if !ok || kind != vecfilter.BackendQueryFailed || !isTransient(err) {
		return outcome, err
	}
	return fn()
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, tok := range []string{"database is locked", "connection reset", "broken pipe", "deadline exceeded", "eof"} {
		if strings.Contains(msg, tok) {
			return true
		}
	}
	return false
}

// Undo restores the previous filter state for currentLayer, applying it
// back to the host per §4.7's context-detection rule. currentlyFiltered
// should report, for every layer the host considers "currently
// filtered", whether it in fact carries an active filter right now;
// the orchestrator does not track that itself since the host is the
// source of truth for what's actually applied to a layer.
func (c *Core) Undo(ctx context.Context, currentLayer vecfilter.LayerRef, currentlyFiltered map[vecfilter.LayerRef]bool) (history.UndoTarget, bool, error) {
	target, ok := c.History.Undo(currentLayer, currentlyFiltered)
	if !ok {
		return target, false, nil
	}
	if err := c.applyUndoTarget(target); err != nil {
		return target, true, err
	}
	return target, true, nil
}

// Redo is Undo's symmetric counterpart.
func (c *Core) Redo(ctx context.Context, currentLayer vecfilter.LayerRef, currentlyFiltered map[vecfilter.LayerRef]bool) (history.UndoTarget, bool, error) {
	target, ok := c.History.Redo(currentLayer, currentlyFiltered)
	if !ok {
		return target, false, nil
	}
	if err := c.applyUndoTarget(target); err != nil {
		return target, true, err
	}
	return target, true, nil
}

func (c *Core) applyUndoTarget(target history.UndoTarget) error {
	if target.Global != nil {
		for ref, state := range target.Global.States {
			handle, _, ok := c.Host.GetLayer(ref)
			if !ok {
				continue
			}
			if err := applyToHost(c.Host, handle, state); err != nil {
				return err
			}
		}
		return nil
	}
	if target.Layer != nil {
		handle, _, ok := c.Host.GetLayer(target.Layer.LayerRef)
		if !ok {
			return nil
		}
		return applyToHost(c.Host, handle, *target.Layer)
	}
	return nil
}
