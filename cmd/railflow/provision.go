package main

import (
	"github.com/spf13/cobra"

	"github.com/drblury/railflow/internal/provision"
)

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the Kafka topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateProvision(); err != nil {
				return err
			}
			admin, err := provision.NewClusterAdmin(a.cfg.KafkaBrokers, a.cfg.KafkaClientID)
			if err != nil {
				return err
			}
			defer admin.Close()

			return provision.CreateTopics(admin, provision.Settings{
				Partitions:        int32(a.cfg.TopicPartitions),
				ReplicationFactor: int16(a.cfg.TopicReplicationFactor),
			}, a.logger)
		},
	}
}
