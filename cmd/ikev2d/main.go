// Command ikev2d runs the IKEv2 responder daemon: it binds the IKE
// port, feeds datagrams into the demultiplexer and exposes metrics.
package main

import (
	"net"
	"net/http"
	"os"
	"time"

	ike "github.com/msgboxio/ikev2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logrus.New()

func main() {
	root := &cobra.Command{
		Use:          "ikev2d",
		Short:        "IKEv2 protocol engine daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file")
	root.PersistentFlags().String("log-level", "info", "debug, info, warning or error")

	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) error {
	v := viper.GetViper()
	v.SetDefault("listen", "0.0.0.0:500")
	v.SetDefault("metrics", "127.0.0.1:9501")
	v.SetDefault("fragmentation", true)
	v.SetDefault("half-open-soft", 128)
	v.SetDefault("half-open-hard", 512)
	v.SetDefault("responder-wait", "30s")
	v.SetDefault("retransmit-interval", "2s")
	v.SetDefault("retransmit-tries", 5)
	v.SetDefault("replace-interval", "1h")
	v.SetEnvPrefix("IKEV2D")
	v.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
		log.Infof("using config file %s", v.ConfigFileUsed())
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}
	return nil
}

func engineConfig() *ike.Config {
	v := viper.GetViper()
	cfg := ike.DefaultConfig()
	cfg.FragmentationAllowed = v.GetBool("fragmentation")
	cfg.HalfOpenSoftThreshold = v.GetInt("half-open-soft")
	cfg.HalfOpenHardThreshold = v.GetInt("half-open-hard")
	cfg.ResponderWait = v.GetDuration("responder-wait")
	cfg.RetransmitInterval = v.GetDuration("retransmit-interval")
	cfg.RetransmitTries = v.GetInt("retransmit-tries")
	cfg.ReplaceInterval = v.GetDuration("replace-interval")
	return cfg
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "listen for IKEv2 exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			v := viper.GetViper()

			conn, err := ike.Listen("udp", v.GetString("listen"), log)
			if err != nil {
				return err
			}
			defer conn.Close()

			reg := prometheus.NewRegistry()
			demux := ike.NewDemux(engineConfig(), &ike.Handlers{}, log, reg,
				func(b []byte, to net.Addr) error {
					return conn.WritePacket(b, to)
				})
			defer demux.Close()

			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{
					Addr:              v.GetString("metrics"),
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				log.Infof("metrics on http://%s/metrics", srv.Addr)
				if err := srv.ListenAndServe(); err != http.ErrServerClosed {
					log.Error(err)
				}
			}()

			go func() {
				for ev := range demux.Events() {
					log.WithFields(logrus.Fields{
						"sa":    ev.SaSerial,
						"event": ev.Type.String(),
					}).Info("sa event")
				}
			}()

			log.Infof("listening for IKEv2 on %s", v.GetString("listen"))
			return demux.Run(conn)
		},
	}
}
