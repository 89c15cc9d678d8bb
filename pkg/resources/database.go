package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// DatabaseCluster is the provider-side representation of a managed database
// cluster.
type DatabaseCluster struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Engine     string   `json:"engine"`
	Version    string   `json:"version"`
	Status     string   `json:"status"`
	NumNodes   int      `json:"num_nodes"`
	Size       string   `json:"size"`
	Region     string   `json:"region"`
	Tags       []string `json:"tags"`
	PrivateNet string   `json:"private_network_uuid,omitempty"`
	Connection *struct {
		URI      string `json:"uri"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		SSL      bool   `json:"ssl"`
	} `json:"connection,omitempty"`
	CreatedAt string `json:"created_at"`
}

// DatabaseClusterSpec is the database_cluster module specification.
type DatabaseClusterSpec struct {
	Engine   string   `json:"engine,omitempty" validate:"omitempty,oneof=pg mysql redis valkey mongodb kafka opensearch"`
	Version  string   `json:"version,omitempty"`
	Size     string   `json:"size,omitempty"`
	Region   string   `json:"region,omitempty"`
	NumNodes int      `json:"num_nodes,omitempty" validate:"omitempty,min=1,max=3"`
	Tags     []string `json:"tags,omitempty"`
	VPCUUID  string   `json:"private_network_uuid,omitempty"`

	// Wait blocks until the cluster reports status online.
	Wait          *bool `json:"wait,omitempty"`
	WaitTimeout   int   `json:"wait_timeout,omitempty"`
	SleepInterval int   `json:"sleep_interval,omitempty"`
}

func (s *DatabaseClusterSpec) wait() bool {
	if s.Wait == nil {
		return true
	}
	return *s.Wait
}

func (s *DatabaseClusterSpec) waitConfig() engine.WaitConfig {
	cfg := engine.WaitConfig{Timeout: 10 * time.Minute, SleepInterval: 15 * time.Second}
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// DatabaseClusterModule reconciles managed database clusters by name.
// Clusters are create-or-delete; attribute changes after provisioning are
// not reconciled here.
type DatabaseClusterModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewDatabaseClusterModule creates the database_cluster module.
func NewDatabaseClusterModule(opts Options) *DatabaseClusterModule {
	return &DatabaseClusterModule{opts: opts, log: opts.logger("database_cluster")}
}

// Type implements Module.
func (m *DatabaseClusterModule) Type() string { return "database_cluster" }

// Reconcile implements Module.
func (m *DatabaseClusterModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec DatabaseClusterSpec
	if err := decodeSpec(req.Spec, "database_cluster", &spec); err != nil {
		return nil, err
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	return engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[DatabaseCluster]{
		Describe: fmt.Sprintf("database cluster %q", req.Name),
		Lookup: func(ctx context.Context) (*DatabaseCluster, error) {
			return FindDatabaseClusterByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*DatabaseCluster, error) {
			if spec.Engine == "" || spec.Size == "" || spec.Region == "" || spec.NumNodes == 0 {
				return nil, engine.NewValidationError(
					"engine, size, region, and num_nodes are required to create a database cluster")
			}
			body := map[string]any{
				"name":      req.Name,
				"engine":    spec.Engine,
				"size":      spec.Size,
				"region":    spec.Region,
				"num_nodes": spec.NumNodes,
			}
			if spec.Version != "" {
				body["version"] = spec.Version
			}
			if len(spec.Tags) > 0 {
				body["tags"] = spec.Tags
			}
			if spec.VPCUUID != "" {
				body["private_network_uuid"] = spec.VPCUUID
			}
			var out struct {
				Database DatabaseCluster `json:"database"`
			}
			if err := client.Post(ctx, "/databases", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("database_cluster", req.Name).Info("database cluster created")
			if !spec.wait() {
				return &out.Database, nil
			}
			return m.waitForOnline(ctx, out.Database.ID, waitCfg)
		},
		Delete: func(ctx context.Context, current *DatabaseCluster) error {
			return client.Delete(ctx, "/databases/"+current.ID, nil)
		},
	})
}

func (m *DatabaseClusterModule) waitForOnline(ctx context.Context, id string, cfg engine.WaitConfig) (*DatabaseCluster, error) {
	var last *DatabaseCluster
	err := engine.Poll(ctx, cfg, fmt.Sprintf("database cluster %s to come online", id), func(ctx context.Context) (bool, error) {
		var out struct {
			Database DatabaseCluster `json:"database"`
		}
		if err := m.opts.Client.Get(ctx, "/databases/"+id, nil, &out); err != nil {
			return false, err
		}
		last = &out.Database
		return out.Database.Status == "online", nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// ListDatabaseClusters returns all managed database clusters.
func ListDatabaseClusters(ctx context.Context, client *doapi.Client) ([]DatabaseCluster, error) {
	return doapi.ListAll[DatabaseCluster](ctx, client, "/databases", "databases", nil)
}

// FindDatabaseClusterByName returns the named cluster, or nil.
func FindDatabaseClusterByName(ctx context.Context, client *doapi.Client, name string) (*DatabaseCluster, error) {
	clusters, err := ListDatabaseClusters(ctx, client)
	if err != nil {
		return nil, err
	}
	for i := range clusters {
		if clusters[i].Name == name {
			return &clusters[i], nil
		}
	}
	return nil, nil
}
