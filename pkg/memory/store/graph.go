package store

import (
	"context"
	"errors"
	"fmt"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

const (
	relKnows     = "KNOWS"
	relWitnessed = "WITNESSED"
)

// cypherRunner executes a Cypher statement and returns its records as maps.
type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

type neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	res, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(r.database))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, rec.AsMap())
	}
	return out, nil
}

// KnowledgeGraph overlays who-knows-what edges kept in Neo4j onto the
// snapshots of another Source. KNOWS edges extend a character's known
// events and WITNESSED edges extend a memory's witness list.
type KnowledgeGraph struct {
	Source
	runner cypherRunner
	driver neo4j.DriverWithContext
	log    zerolog.Logger
}

// NewKnowledgeGraph connects to Neo4j and wraps src.
func NewKnowledgeGraph(ctx context.Context, src Source, uri, user, password, database string) (*KnowledgeGraph, error) {
	if src == nil {
		return nil, errors.New("knowledge graph requires a source")
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	g := newKnowledgeGraph(src, &neo4jRunner{driver: driver, database: database})
	g.driver = driver
	return g, nil
}

func newKnowledgeGraph(src Source, runner cypherRunner) *KnowledgeGraph {
	return &KnowledgeGraph{
		Source: src,
		runner: runner,
		log:    log.With().Str("component", "knowledge_graph").Logger(),
	}
}

// Load reads the wrapped snapshot and merges graph edges into it. Graph
// failures are logged and the plain snapshot is returned.
func (g *KnowledgeGraph) Load(ctx context.Context, chatID string) (Snapshot, error) {
	snap, err := g.Source.Load(ctx, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := g.runner.Run(ctx, `
        MATCH (c:Character {chat_id: $chat})-[r:KNOWS|WITNESSED]->(m:Memory {chat_id: $chat})
        RETURN c.name AS character, type(r) AS rel, m.id AS memory
    `, map[string]any{"chat": chatID})
	if err != nil {
		g.log.Warn().Err(err).Str("chat_id", chatID).Msg("graph lookup failed, using stored snapshot")
		return snap, nil
	}
	return mergeEdges(snap, rows), nil
}

func mergeEdges(snap Snapshot, rows []map[string]any) Snapshot {
	if snap.Characters == nil {
		snap.Characters = model.Characters{}
	}
	index := make(map[string]int, len(snap.Memories))
	for i, m := range snap.Memories {
		index[m.ID] = i
	}
	for _, row := range rows {
		name := model.StringFromAny(row["character"])
		memID := model.StringFromAny(row["memory"])
		if name == "" || memID == "" {
			continue
		}
		switch model.StringFromAny(row["rel"]) {
		case relKnows:
			st := snap.Characters.Ensure(name)
			if !st.Knows(memID) {
				st.KnownEvents = append(append([]string(nil), st.KnownEvents...), memID)
			}
			snap.Characters[characterKey(snap.Characters, name)] = st
		case relWitnessed:
			i, ok := index[memID]
			if !ok {
				continue
			}
			if !model.ContainsName(snap.Memories[i].Witnesses, name) {
				snap.Memories[i].Witnesses = append(append([]string(nil), snap.Memories[i].Witnesses...), name)
			}
		}
	}
	return snap
}

// characterKey returns the existing map key matching name, or name itself.
func characterKey(chars model.Characters, name string) string {
	if _, ok := chars[name]; ok {
		return name
	}
	key := model.NormalizeName(name)
	for k := range chars {
		if model.NormalizeName(k) == key {
			return k
		}
	}
	return name
}

// Project writes the snapshot's memories, characters and edges into the graph.
func (g *KnowledgeGraph) Project(ctx context.Context, chatID string, snap Snapshot) error {
	memories := make([]map[string]any, 0, len(snap.Memories))
	var edges []map[string]any
	for _, m := range snap.Memories {
		memories = append(memories, map[string]any{
			"id":         m.ID,
			"summary":    m.Summary,
			"importance": m.Normalized().Importance,
			"sequence":   m.Sequence,
		})
		for _, w := range m.Witnesses {
			edges = append(edges, map[string]any{"character": w, "memory": m.ID, "rel": relWitnessed})
		}
	}
	for name, st := range snap.Characters {
		for _, id := range st.KnownEvents {
			edges = append(edges, map[string]any{"character": name, "memory": id, "rel": relKnows})
		}
	}
	if _, err := g.runner.Run(ctx, `
        UNWIND $memories AS mem
        MERGE (m:Memory {chat_id: $chat, id: mem.id})
        SET m.summary = mem.summary, m.importance = mem.importance, m.sequence = mem.sequence
    `, map[string]any{"chat": chatID, "memories": memories}); err != nil {
		return fmt.Errorf("project memories: %w", err)
	}
	if len(edges) == 0 {
		return nil
	}
	if _, err := g.runner.Run(ctx, `
        UNWIND $edges AS e
        MERGE (c:Character {chat_id: $chat, name: e.character})
        WITH c, e
        MATCH (m:Memory {chat_id: $chat, id: e.memory})
        FOREACH (_ IN CASE WHEN e.rel = 'KNOWS' THEN [1] ELSE [] END | MERGE (c)-[:KNOWS]->(m))
        FOREACH (_ IN CASE WHEN e.rel = 'WITNESSED' THEN [1] ELSE [] END | MERGE (c)-[:WITNESSED]->(m))
    `, map[string]any{"chat": chatID, "edges": edges}); err != nil {
		return fmt.Errorf("project edges: %w", err)
	}
	return nil
}

func (g *KnowledgeGraph) Close() error {
	var err error
	if c, ok := g.Source.(interface{ Close() error }); ok {
		err = c.Close()
	}
	if g.driver != nil {
		err = errors.Join(err, g.driver.Close(context.Background()))
	}
	return err
}
