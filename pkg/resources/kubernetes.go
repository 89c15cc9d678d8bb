package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/openlagoon/openlagoon/pkg/doapi"
	"github.com/openlagoon/openlagoon/pkg/engine"
	"github.com/openlagoon/openlagoon/pkg/telemetry"
)

// KubernetesNodePool is one node pool of a cluster.
type KubernetesNodePool struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Size      string   `json:"size"`
	Count     int      `json:"count"`
	Tags      []string `json:"tags,omitempty"`
	AutoScale bool     `json:"auto_scale,omitempty"`
	MinNodes  int      `json:"min_nodes,omitempty"`
	MaxNodes  int      `json:"max_nodes,omitempty"`
}

// KubernetesCluster is the provider-side representation of a DOKS cluster.
type KubernetesCluster struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Region        string               `json:"region"`
	Version       string               `json:"version"`
	Endpoint      string               `json:"endpoint"`
	IPv4          string               `json:"ipv4"`
	Tags          []string             `json:"tags"`
	NodePools     []KubernetesNodePool `json:"node_pools"`
	VPCUUID       string               `json:"vpc_uuid,omitempty"`
	HA            bool                 `json:"ha"`
	AutoUpgrade   bool                 `json:"auto_upgrade"`
	SurgeUpgrade  bool                 `json:"surge_upgrade"`
	Status        struct {
		State string `json:"state"`
	} `json:"status"`
	CreatedAt string `json:"created_at"`
}

// KubernetesClusterSpec is the kubernetes_cluster module specification.
type KubernetesClusterSpec struct {
	Region       string               `json:"region,omitempty"`
	Version      string               `json:"version,omitempty"`
	NodePools    []KubernetesNodePool `json:"node_pools,omitempty"`
	Tags         []string             `json:"tags,omitempty"`
	VPCUUID      string               `json:"vpc_uuid,omitempty"`
	HA           bool                 `json:"ha,omitempty"`
	AutoUpgrade  bool                 `json:"auto_upgrade,omitempty"`
	SurgeUpgrade bool                 `json:"surge_upgrade,omitempty"`

	// ReturnKubeconfig fetches the cluster kubeconfig into the result data.
	ReturnKubeconfig bool `json:"return_kubeconfig,omitempty"`

	// Wait blocks until the cluster reports state running.
	Wait          *bool `json:"wait,omitempty"`
	WaitTimeout   int   `json:"wait_timeout,omitempty"`
	SleepInterval int   `json:"sleep_interval,omitempty"`
}

func (s *KubernetesClusterSpec) wait() bool {
	if s.Wait == nil {
		return true
	}
	return *s.Wait
}

func (s *KubernetesClusterSpec) waitConfig() engine.WaitConfig {
	cfg := engine.WaitConfig{Timeout: 10 * time.Minute, SleepInterval: 15 * time.Second}
	if s.WaitTimeout != 0 {
		cfg.Timeout = time.Duration(s.WaitTimeout) * time.Second
	}
	if s.SleepInterval != 0 {
		cfg.SleepInterval = time.Duration(s.SleepInterval) * time.Second
	}
	return cfg
}

// KubernetesFacts is the reconcile result payload for clusters.
type KubernetesFacts struct {
	KubernetesCluster
	Kubeconfig string `json:"kubeconfig,omitempty"`
}

// KubernetesClusterModule reconciles DOKS clusters by name.
type KubernetesClusterModule struct {
	opts Options
	log  *telemetry.Logger
}

// NewKubernetesClusterModule creates the kubernetes_cluster module.
func NewKubernetesClusterModule(opts Options) *KubernetesClusterModule {
	return &KubernetesClusterModule{opts: opts, log: opts.logger("kubernetes_cluster")}
}

// Type implements Module.
func (m *KubernetesClusterModule) Type() string { return "kubernetes_cluster" }

// Reconcile implements Module.
func (m *KubernetesClusterModule) Reconcile(ctx context.Context, req Request) (*engine.Result, error) {
	var spec KubernetesClusterSpec
	if err := decodeSpec(req.Spec, "kubernetes_cluster", &spec); err != nil {
		return nil, err
	}
	waitCfg := spec.waitConfig()
	if err := waitCfg.Validate(); err != nil {
		return nil, err
	}

	client := m.opts.Client

	result, err := engine.Reconcile(ctx, req.State, m.opts.CheckMode, engine.Ops[KubernetesCluster]{
		Describe: fmt.Sprintf("kubernetes cluster %q", req.Name),
		Lookup: func(ctx context.Context) (*KubernetesCluster, error) {
			return FindKubernetesClusterByName(ctx, client, req.Name)
		},
		Create: func(ctx context.Context) (*KubernetesCluster, error) {
			if spec.Region == "" || spec.Version == "" || len(spec.NodePools) == 0 {
				return nil, engine.NewValidationError(
					"region, version, and node_pools are required to create a kubernetes cluster")
			}
			body := map[string]any{
				"name":          req.Name,
				"region":        spec.Region,
				"version":       spec.Version,
				"node_pools":    spec.NodePools,
				"ha":            spec.HA,
				"auto_upgrade":  spec.AutoUpgrade,
				"surge_upgrade": spec.SurgeUpgrade,
			}
			if len(spec.Tags) > 0 {
				body["tags"] = spec.Tags
			}
			if spec.VPCUUID != "" {
				body["vpc_uuid"] = spec.VPCUUID
			}
			var out struct {
				Cluster KubernetesCluster `json:"kubernetes_cluster"`
			}
			if err := client.Post(ctx, "/kubernetes/clusters", body, &out); err != nil {
				return nil, err
			}
			m.log.WithResource("kubernetes_cluster", req.Name).Info("kubernetes cluster created")
			if !spec.wait() {
				return &out.Cluster, nil
			}
			return m.waitForRunning(ctx, out.Cluster.ID, waitCfg)
		},
		Delete: func(ctx context.Context, current *KubernetesCluster) error {
			return client.Delete(ctx, "/kubernetes/clusters/"+current.ID, nil)
		},
	})
	if err != nil || req.State == engine.StateAbsent {
		return result, err
	}

	if spec.ReturnKubeconfig && !m.opts.CheckMode {
		cluster, ok := result.Data.(*KubernetesCluster)
		if ok && cluster != nil {
			kubeconfig, err := m.fetchKubeconfig(ctx, cluster.ID)
			if err != nil {
				return nil, err
			}
			result.Data = &KubernetesFacts{KubernetesCluster: *cluster, Kubeconfig: kubeconfig}
		}
	}
	return result, nil
}

func (m *KubernetesClusterModule) waitForRunning(ctx context.Context, id string, cfg engine.WaitConfig) (*KubernetesCluster, error) {
	var last *KubernetesCluster
	err := engine.Poll(ctx, cfg, fmt.Sprintf("kubernetes cluster %s to start running", id), func(ctx context.Context) (bool, error) {
		var out struct {
			Cluster KubernetesCluster `json:"kubernetes_cluster"`
		}
		if err := m.opts.Client.Get(ctx, "/kubernetes/clusters/"+id, nil, &out); err != nil {
			return false, err
		}
		last = &out.Cluster
		if out.Cluster.Status.State == "error" {
			return false, engine.NewPermanentError(fmt.Sprintf("kubernetes cluster %s entered error state", id), nil)
		}
		return out.Cluster.Status.State == "running", nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// fetchKubeconfig returns the raw kubeconfig for a cluster. The endpoint
// serves YAML, not JSON.
func (m *KubernetesClusterModule) fetchKubeconfig(ctx context.Context, id string) (string, error) {
	raw, err := m.opts.Client.GetRaw(ctx, "/kubernetes/clusters/"+id+"/kubeconfig")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ListKubernetesClusters returns all DOKS clusters.
func ListKubernetesClusters(ctx context.Context, client *doapi.Client) ([]KubernetesCluster, error) {
	return doapi.ListAll[KubernetesCluster](ctx, client, "/kubernetes/clusters", "kubernetes_clusters", nil)
}

// FindKubernetesClusterByName returns the named cluster, or nil.
func FindKubernetesClusterByName(ctx context.Context, client *doapi.Client, name string) (*KubernetesCluster, error) {
	clusters, err := ListKubernetesClusters(ctx, client)
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
