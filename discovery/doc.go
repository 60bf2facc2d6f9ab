// Package discovery finds the queue servers to crawl.
//
// EtcdSource reads servers registered under /<namespace>/beanstalk/ in
// etcd. Each key holds a JSON Server whose Addr is an address spec in any
// form the pool package accepts. Register and Deregister maintain the
// entries; Watch streams the address list as it changes.
//
//	src, err := discovery.NewEtcdSource(discovery.Config{
//	    Endpoints: []string{"localhost:2379"},
//	    Namespace: "prod",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	c, err := climber.New(ctx, climber.WithDiscovery(src))
package discovery
