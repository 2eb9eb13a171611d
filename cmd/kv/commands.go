package kv

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores the value for a key on all replicas",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			existed, err := kvClient.Put(cmd.Context(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			if existed {
				fmt.Println("put successfully (overwritten)")
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := kvClient.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, resp=%s\n", args[0], value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair on all replicas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvClient.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	keyCmd = &cobra.Command{
		Use:   "key",
		Short: "Requests the shared key of the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := kvClient.SharedKey(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
)
