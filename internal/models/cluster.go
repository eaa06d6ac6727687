package models

import (
	"fmt"
	"time"
)

// Scope is the set of chunks a clustering run considers. A zero CallID means
// the whole corpus.
type Scope struct {
	CallID int64
}

// GlobalScope is the corpus-wide scope.
var GlobalScope = Scope{}

// IsGlobal reports whether the scope covers the whole corpus.
func (s Scope) IsGlobal() bool {
	return s.CallID == 0
}

// Key is the persisted identifier of the scope.
func (s Scope) Key() string {
	if s.IsGlobal() {
		return "all"
	}
	return fmt.Sprintf("call:%d", s.CallID)
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "all chunks"
	}
	return fmt.Sprintf("call %d", s.CallID)
}

// Assignment maps a chunk to a cluster within one scope.
type Assignment struct {
	ChunkID   int64
	ClusterID int
}

// Clustering is the result of one clustering computation. Clusters[i] holds
// the chunk IDs of cluster i.
type Clustering struct {
	Scope     Scope
	Threshold float64
	Clusters  [][]int64
}

// Assignments flattens the clustering into persistable rows.
func (c Clustering) Assignments() []Assignment {
	var out []Assignment
	for clusterID, ids := range c.Clusters {
		for _, id := range ids {
			out = append(out, Assignment{ChunkID: id, ClusterID: clusterID})
		}
	}
	return out
}

// Size returns the number of clustered chunks.
func (c Clustering) Size() int {
	n := 0
	for _, ids := range c.Clusters {
		n += len(ids)
	}
	return n
}

// ClusterRun records one stored clustering run.
type ClusterRun struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"-"`
	Threshold float64   `json:"distance_threshold"`
	Clusters  int       `json:"clusters"`
	Chunks    int       `json:"chunks_clustered"`
	CreatedAt time.Time `json:"created_at"`
}

// ClusterSize is a cluster ID with its member count.
type ClusterSize struct {
	ClusterID int
	Size      int
}

// ClusterMember is a chunk with enough parent context to display without
// further lookups.
type ClusterMember struct {
	ClusterID int       `json:"cluster_id"`
	ChunkID   int64     `json:"id"`
	ParentID  int64     `json:"call_id"`
	Index     int       `json:"chunk_idx"`
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker,omitempty"`
	Org       string    `json:"org_name"`
	Project   string    `json:"project_name,omitempty"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CallDate  time.Time `json:"call_date"`
}

// ClusterDetail is an aggregate view of one cluster.
type ClusterDetail struct {
	ClusterID int             `json:"cluster_id"`
	Size      int             `json:"size"`
	Label     string          `json:"label"`
	Summary   string          `json:"summary,omitempty"`
	Members   []ClusterMember `json:"chunks"`
}
