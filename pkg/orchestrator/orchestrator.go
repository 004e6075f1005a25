// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/reachmap/internal/contract"
	"github.com/kraklabs/reachmap/internal/errors"
	"github.com/kraklabs/reachmap/pkg/bitcode"
	"github.com/kraklabs/reachmap/pkg/buildcmd"
	"github.com/kraklabs/reachmap/pkg/catalog"
	"github.com/kraklabs/reachmap/pkg/graphstore"
	"github.com/kraklabs/reachmap/pkg/harness"
	"github.com/kraklabs/reachmap/pkg/logsink"
	"github.com/kraklabs/reachmap/pkg/metrics"
	"github.com/kraklabs/reachmap/pkg/pointeranalysis"
	"github.com/kraklabs/reachmap/pkg/probe"
	"github.com/kraklabs/reachmap/pkg/reaches"
	"github.com/kraklabs/reachmap/pkg/refiner"
)

// GraphWriter is the subset of graphstore.EmbeddedBackend the commit
// phase needs. Declared here, rather than depending on the concrete
// type, so tests can commit against a fake.
type GraphWriter interface {
	CreateSnapshotNode(ctx context.Context, id, repoURL, version, backend string) error
	ImportFunctions(ctx context.Context, snapshotID string, functions []graphstore.FunctionRecord) (int, error)
	ImportEdges(ctx context.Context, snapshotID string, edges []graphstore.CallEdge) (int, error)
	ImportFuzzers(ctx context.Context, snapshotID string, fuzzers []graphstore.FuzzerInfo) (int, error)
	ImportReaches(ctx context.Context, snapshotID string, triples []graphstore.ReachesTriple) (int, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
}

// Orchestrator drives the six-phase pipeline described in spec.md §2/§3.4.
type Orchestrator struct {
	Catalog  *catalog.Catalog
	Graph    GraphWriter
	Logs     *logsink.Sink
	Probe    *probe.Probe
	BuildCmd *buildcmd.Resolver
	Bitcode  *bitcode.Builder
	Analysis pointeranalysis.Backend
	Harness  *harness.Parser
	Reaches  *reaches.Computer
	Refiner  refiner.Refiner

	WorkDir             string
	WaitPollInterval    time.Duration
	WaitOverallDeadline time.Duration
}

// New constructs an Orchestrator from its fully wired dependencies. Refiner
// defaults to refiner.Noop{} if nil, since AI refinement is an optional
// hook (spec.md §9.5), never a required phase.
func New(
	cat *catalog.Catalog,
	graph GraphWriter,
	logs *logsink.Sink,
	pr *probe.Probe,
	bc *buildcmd.Resolver,
	bld *bitcode.Builder,
	analysis pointeranalysis.Backend,
	hp *harness.Parser,
	rc *reaches.Computer,
	ref refiner.Refiner,
	workDir string,
) *Orchestrator {
	if ref == nil {
		ref = refiner.Noop{}
	}
	return &Orchestrator{
		Catalog:             cat,
		Graph:               graph,
		Logs:                logs,
		Probe:               pr,
		BuildCmd:            bc,
		Bitcode:             bld,
		Analysis:            analysis,
		Harness:             hp,
		Reaches:             rc,
		Refiner:             ref,
		WorkDir:             workDir,
		WaitPollInterval:    5 * time.Second,
		WaitOverallDeadline: 30 * time.Minute,
	}
}

// Run admits ticket into the catalog and, if this caller owns the build,
// executes the full pipeline. A Hit returns the cached AnalysisOutput
// immediately; a Wait blocks on the in-progress builder via
// catalog.WaitUntilReady; an Own runs every phase and commits the result.
func (o *Orchestrator) Run(ctx context.Context, ticket Ticket) (*AnalysisOutput, error) {
	ct := contract.Ticket{
		RepoURL:       ticket.RepoURL,
		Version:       ticket.Version,
		FuzzerSources: ticket.FuzzerSources,
	}
	if res := contract.ValidateTicket(ct); !res.OK {
		return nil, errors.NewInputError("invalid work ticket", res.Message, "correct the ticket fields and resubmit")
	}

	backend := ticket.Backend
	if backend == "" {
		backend = o.Analysis.Name()
	}

	acq, err := o.Catalog.AcquireOrWait(ctx, ticket.RepoURL, ticket.Version, backend)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: admission: %w", err)
	}

	metrics.RecordAdmission(strings.ToLower(acq.Outcome.String()))

	switch acq.Outcome {
	case catalog.Hit:
		return recordToOutput(acq.Record, true), nil
	case catalog.Wait:
		rec, err := o.Catalog.WaitUntilReady(ctx, acq.Record.ID, o.WaitPollInterval, o.WaitOverallDeadline)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: wait for in-progress build: %w", err)
		}
		return recordToOutput(*rec, true), nil
	case catalog.Own:
		out, runErr := o.build(ctx, acq.Record.ID, ticket, backend)
		if runErr != nil {
			_ = o.Catalog.MarkFailed(ctx, acq.Record.ID, runErr.Error())
			return nil, runErr
		}
		return out, nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown admission outcome %v", acq.Outcome)
	}
}

// build runs the six analysis phases for a snapshot this caller owns, then
// commits the result to the graph store and marks the catalog row
// completed. Any phase error is returned unwrapped so Run can mark the row
// failed with its message and re-raise, per spec.md §7.
func (o *Orchestrator) build(ctx context.Context, snapshotID string, ticket Ticket, backend string) (*AnalysisOutput, error) {
	start := time.Now()

	checkoutRoot := ticket.Path
	if checkoutRoot == "" {
		dir, err := cloneAtVersion(o.WorkDir, ticket.RepoURL, ticket.Version)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		checkoutRoot = dir
	}

	o.logInfo(snapshotID, logsink.PhaseProbe, "starting probe", map[string]any{"root": checkoutRoot})
	phaseStart := time.Now()
	info, err := o.Probe.Run(checkoutRoot, ticket.DiffFiles)
	metrics.ObservePhaseDuration(logsink.PhaseProbe, time.Since(phaseStart).Seconds())
	if err != nil {
		metrics.RecordPhaseFailure(logsink.PhaseProbe)
		o.logError(snapshotID, logsink.PhaseProbe, err)
		return nil, err
	}
	language := ticket.Language
	if language == "" {
		language = info.PrimaryLanguage
	}
	o.logInfo(snapshotID, logsink.PhaseProbe, "probe complete", map[string]any{
		"build_system": info.BuildSystem, "language": language, "source_files": len(info.SourceFiles),
	})

	o.logInfo(snapshotID, logsink.PhaseBuildCmd, "resolving build command", nil)
	phaseStart = time.Now()
	bc, err := o.BuildCmd.Resolve(info.BuildSystem, ticket.BuildScript)
	metrics.ObservePhaseDuration(logsink.PhaseBuildCmd, time.Since(phaseStart).Seconds())
	if err != nil {
		metrics.RecordPhaseFailure(logsink.PhaseBuildCmd)
		o.logError(snapshotID, logsink.PhaseBuildCmd, err)
		return nil, err
	}
	o.logInfo(snapshotID, logsink.PhaseBuildCmd, "build command resolved", map[string]any{
		"source": bc.Source, "confidence": bc.Confidence,
	})

	buildWorkDir, err := os.MkdirTemp(o.WorkDir, "build-*")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create build workdir: %w", err)
	}
	defer os.RemoveAll(buildWorkDir)

	harnessFiles := allFuzzerFiles(ticket.FuzzerSources)

	o.logInfo(snapshotID, logsink.PhaseBitcode, "building bitcode", nil)
	phaseStart = time.Now()
	bcOut, err := o.Bitcode.Build(ctx, checkoutRoot, buildWorkDir, bc.Commands, harnessFiles)
	metrics.ObservePhaseDuration(logsink.PhaseBitcode, time.Since(phaseStart).Seconds())
	if err != nil {
		metrics.RecordPhaseFailure(logsink.PhaseBitcode)
		o.logError(snapshotID, logsink.PhaseBitcode, err)
		return nil, err
	}
	o.logInfo(snapshotID, logsink.PhaseBitcode, "bitcode build complete", map[string]any{
		"functions_extracted": len(bcOut.FunctionMetas),
	})

	// PointerAnalysisBackend and HarnessParser have no data dependency on
	// one another; run them concurrently (spec.md §2 data-flow diagram's
	// parallel lanes).
	var analysisResult *pointeranalysis.AnalysisResult
	var harnessClosures map[string][]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.logInfo(snapshotID, logsink.PhaseSVF, "running pointer analysis", map[string]any{"backend": o.Analysis.Name()})
		svfStart := time.Now()
		res, err := o.Analysis.Analyze(gctx, bcOut.BCPath, language, nil)
		metrics.ObservePhaseDuration(logsink.PhaseSVF, time.Since(svfStart).Seconds())
		if err != nil {
			metrics.RecordPhaseFailure(logsink.PhaseSVF)
			o.logError(snapshotID, logsink.PhaseSVF, err)
			return err
		}
		for _, w := range res.Warnings {
			o.logWarn(snapshotID, logsink.PhaseSVF, w)
		}
		analysisResult = res
		return nil
	})
	g.Go(func() error {
		o.logInfo(snapshotID, logsink.PhaseFuzzerParse, "parsing fuzzer harnesses", nil)
		libraryFunctions := make(map[string]bool, len(bcOut.FunctionMetas))
		for _, fm := range bcOut.FunctionMetas {
			libraryFunctions[fm.OriginalName] = true
		}
		harnesses := make([]harness.Harness, 0, len(ticket.FuzzerSources))
		for name, files := range ticket.FuzzerSources {
			harnesses = append(harnesses, harness.Harness{FuzzerName: name, EntryFunction: fuzzEntrySymbol, Files: files})
		}
		fuzzerParseStart := time.Now()
		closures, err := o.Harness.Resolve(gctx, checkoutRoot, harnesses, libraryFunctions)
		metrics.ObservePhaseDuration(logsink.PhaseFuzzerParse, time.Since(fuzzerParseStart).Seconds())
		if err != nil {
			metrics.RecordPhaseFailure(logsink.PhaseFuzzerParse)
			o.logError(snapshotID, logsink.PhaseFuzzerParse, err)
			return err
		}
		harnessClosures = closures
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	o.logInfo(snapshotID, logsink.PhaseSVF, "pointer analysis complete", map[string]any{
		"functions": len(analysisResult.Functions), "edges": len(analysisResult.Edges),
	})
	o.logInfo(snapshotID, logsink.PhaseFuzzerParse, "harness parsing complete", map[string]any{"fuzzers": len(harnessClosures)})

	metaByIR := make(map[string]bitcode.FunctionMeta, len(bcOut.FunctionMetas))
	for _, fm := range bcOut.FunctionMetas {
		metaByIR[fm.IRName] = fm
	}

	functions, externals, reachesEdges, fuzzerEntries := joinAnalysisWithMeta(
		analysisResult, metaByIR, ticket.FuzzerSources, harnessClosures, o.Analysis.Name(), language,
	)

	o.logInfo(snapshotID, logsink.PhaseAIRefine, "refining analysis output", nil)
	refined, err := o.Refiner.Refine(ctx, &refiner.Input{Functions: functions, Edges: analysisResult.Edges})
	if err != nil {
		o.logWarn(snapshotID, logsink.PhaseAIRefine, "refiner error, continuing with unrefined output: "+err.Error())
	} else {
		functions = refined.Functions
	}

	triples := o.Reaches.Compute(reachesEdges, fuzzerEntries)

	o.logInfo(snapshotID, logsink.PhaseImport, "committing snapshot", nil)
	phaseStart = time.Now()
	nodeCount, edgeCount, err := o.commit(ctx, snapshotID, ticket, backend, functions, externals, analysisResult.Edges, fuzzerEntries, triples)
	metrics.ObservePhaseDuration(logsink.PhaseImport, time.Since(phaseStart).Seconds())
	if err != nil {
		metrics.RecordPhaseFailure(logsink.PhaseImport)
		o.logError(snapshotID, logsink.PhaseImport, err)
		return nil, err
	}
	metrics.SetGraphSize(len(functions)+len(externals), len(analysisResult.Edges), len(fuzzerEntries))

	fuzzerNames := make([]string, 0, len(fuzzerEntries))
	for _, fz := range fuzzerEntries {
		fuzzerNames = append(fuzzerNames, fz.FuzzerName)
	}

	if err := o.Catalog.MarkCompleted(ctx, snapshotID, nodeCount, edgeCount, fuzzerNames, time.Since(start).Seconds(), 0); err != nil {
		return nil, fmt.Errorf("orchestrator: mark completed: %w", err)
	}
	o.logInfo(snapshotID, logsink.PhaseImport, "snapshot committed", map[string]any{
		"functions": len(functions), "edges": len(analysisResult.Edges), "fuzzers": len(fuzzerNames),
	})

	return &AnalysisOutput{
		SnapshotID:    snapshotID,
		RepoURL:       ticket.RepoURL,
		Version:       ticket.Version,
		Backend:       backend,
		FunctionCount: len(functions),
		EdgeCount:     len(analysisResult.Edges),
		FuzzerNames:   fuzzerNames,
		Cached:        false,
	}, nil
}

// commit writes the whole snapshot to the graph store in the exact order
// spec.md §3.4 requires: Functions/Externals, then CALLS, then
// Fuzzers+ENTRY+harness edges, then REACHES. The Snapshot node itself must
// not become query-visible until every write below has succeeded. It
// returns the total node and edge count actually committed (testable
// property 1: catalog counts must equal the committed graph, not just the
// pointer-analysis backend's raw function/edge counts).
func (o *Orchestrator) commit(
	ctx context.Context,
	snapshotID string,
	ticket Ticket,
	backend string,
	functions, externals []graphstore.FunctionRecord,
	edges []pointeranalysis.EdgeResult,
	fuzzerEntries []reaches.FuzzerEntry,
	triples []reaches.Triple,
) (nodeCount, edgeCount int64, err error) {
	if err := o.Graph.CreateSnapshotNode(ctx, snapshotID, ticket.RepoURL, ticket.Version, backend); err != nil {
		return 0, 0, errors.NewGraphStoreError("failed to create snapshot node", err.Error(), "check graph store connectivity and retry", err)
	}

	all := append(append([]graphstore.FunctionRecord{}, functions...), externals...)
	if _, err := o.Graph.ImportFunctions(ctx, snapshotID, all); err != nil {
		return 0, 0, errors.NewGraphStoreError("failed to import functions", err.Error(), "check graph store connectivity and retry", err)
	}

	irToIdentity := make(map[string]graphstore.FunctionRecord, len(all))
	for _, f := range all {
		irToIdentity[f.Name] = f
	}
	callEdges := make([]graphstore.CallEdge, 0, len(edges))
	for _, e := range edges {
		caller, ok1 := irToIdentity[e.CallerIRName]
		callee, ok2 := irToIdentity[e.CalleeIRName]
		if !ok1 || !ok2 {
			continue
		}
		callEdges = append(callEdges, graphstore.CallEdge{
			CallerName: caller.Name, CallerFilePath: caller.FilePath,
			CalleeName: callee.Name, CalleeFilePath: callee.FilePath,
			CallType: e.CallType, Confidence: e.Confidence, Backend: backend,
		})
	}
	if _, err := o.Graph.ImportEdges(ctx, snapshotID, callEdges); err != nil {
		return 0, 0, errors.NewGraphStoreError("failed to import call edges", err.Error(), "check graph store connectivity and retry", err)
	}

	fuzzers := make([]graphstore.FuzzerInfo, 0, len(fuzzerEntries))
	harnessCallEdges := 0
	for _, fz := range fuzzerEntries {
		targets := make([]string, 0, len(fz.LibraryCallTargets))
		for _, t := range fz.LibraryCallTargets {
			targets = append(targets, t.Name)
		}
		harnessCallEdges += len(targets)
		fuzzers = append(fuzzers, graphstore.FuzzerInfo{
			Name:               fz.FuzzerName,
			EntryFunction:      fz.EntryFunction.Name,
			EntryFilePath:      fz.EntryFunction.FilePath,
			LibraryCallTargets: targets,
		})
	}
	if _, err := o.Graph.ImportFuzzers(ctx, snapshotID, fuzzers); err != nil {
		return 0, 0, errors.NewGraphStoreError("failed to import fuzzers", err.Error(), "check graph store connectivity and retry", err)
	}

	reachesTriples := make([]graphstore.ReachesTriple, 0, len(triples))
	for _, t := range triples {
		reachesTriples = append(reachesTriples, graphstore.ReachesTriple{
			FuzzerName: t.FuzzerName, FunctionName: t.FunctionName, FunctionFilePath: t.FunctionFilePath, Depth: t.Depth,
		})
	}
	if _, err := o.Graph.ImportReaches(ctx, snapshotID, reachesTriples); err != nil {
		return 0, 0, errors.NewGraphStoreError("failed to import reaches edges", err.Error(), "check graph store connectivity and retry", err)
	}

	// Every fuzzer also commits a dedicated entry Function node and a
	// Fuzzer node (write.go's ImportFuzzers), plus one ENTRY edge, on top
	// of the harness CALLS edges counted above.
	nodeCount = int64(len(all) + 2*len(fuzzerEntries))
	edgeCount = int64(len(callEdges) + len(fuzzerEntries) + harnessCallEdges + len(reachesTriples))

	return nodeCount, edgeCount, nil
}

func (o *Orchestrator) logInfo(snapshotID, phase, msg string, fields map[string]any) {
	if o.Logs != nil {
		_ = o.Logs.Info(snapshotID, phase, msg, fields)
	}
}

func (o *Orchestrator) logWarn(snapshotID, phase, msg string) {
	if o.Logs != nil {
		_ = o.Logs.Warn(snapshotID, phase, msg, nil)
	}
}

func (o *Orchestrator) logError(snapshotID, phase string, err error) {
	if o.Logs != nil {
		_ = o.Logs.Error(snapshotID, phase, err.Error(), nil)
	}
}

func recordToOutput(rec catalog.SnapshotRecord, cached bool) *AnalysisOutput {
	return &AnalysisOutput{
		SnapshotID:    rec.ID,
		RepoURL:       rec.RepoURL,
		Version:       rec.Version,
		Backend:       rec.Backend,
		FunctionCount: int(rec.NodeCount),
		EdgeCount:     int(rec.EdgeCount),
		FuzzerNames:   rec.FuzzerNames,
		Cached:        cached,
	}
}

func allFuzzerFiles(fuzzerSources map[string][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, files := range fuzzerSources {
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
