package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"emperror.dev/errors"
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloudpage/drive/config"
)

var configureArgs struct {
	ConfigPath string
	Data       string
	Port       string
	Token      string
	Override   bool
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Create the configuration file for this instance interactively",
	Run:   configureCmdRun,
}

func init() {
	configureCmd.PersistentFlags().StringVar(&configureArgs.ConfigPath, "config-path", config.DefaultLocation, "the path where the configuration file should be written")
	configureCmd.PersistentFlags().StringVar(&configureArgs.Data, "data", "", "the directory where the drives of all users are stored")
	configureCmd.PersistentFlags().StringVar(&configureArgs.Port, "port", "", "the port the webserver should listen on")
	configureCmd.PersistentFlags().StringVarP(&configureArgs.Token, "token", "t", "", "the token that API requests must present, generated when left empty")
	configureCmd.PersistentFlags().BoolVar(&configureArgs.Override, "override", false, "override an existing configuration")
}

func configureCmdRun(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(configureArgs.ConfigPath); err == nil && !configureArgs.Override {
		if err := survey.AskOne(&survey.Confirm{Message: "Override existing configuration file"}, &configureArgs.Override); err != nil {
			if err == terminal.InterruptErr {
				return
			}
			panic(err)
		}
		if !configureArgs.Override {
			fmt.Println("Aborted.")
			os.Exit(1)
		}
	}

	c, err := config.NewAtPath(configureArgs.ConfigPath)
	if err != nil {
		panic(err)
	}

	var questions []*survey.Question
	if configureArgs.Data == "" {
		questions = append(questions, &survey.Question{
			Name:   "Data",
			Prompt: &survey.Input{Message: "Data directory: ", Default: c.System.Data},
			Validate: func(ans interface{}) error {
				if str, ok := ans.(string); ok && !filepath.IsAbs(str) {
					return errors.New("the data directory must be an absolute path")
				}
				return nil
			},
		})
	}
	if configureArgs.Port == "" {
		questions = append(questions, &survey.Question{
			Name:   "Port",
			Prompt: &survey.Input{Message: "Port: ", Default: strconv.Itoa(c.Api.Port)},
			Validate: func(ans interface{}) error {
				if str, ok := ans.(string); ok {
					if p, err := strconv.Atoi(str); err != nil || p < 1 || p > 65535 {
						return errors.New("the port must be a number between 1 and 65535")
					}
				}
				return nil
			},
		})
	}
	if configureArgs.Token == "" {
		questions = append(questions, &survey.Question{
			Name:   "Token",
			Prompt: &survey.Input{Message: "Token (leave empty to generate one): "},
		})
	}

	err = survey.Ask(questions, &configureArgs)
	if err == terminal.InterruptErr {
		return
	}
	if err != nil {
		panic(err)
	}

	if configureArgs.Token == "" {
		configureArgs.Token = uuid.NewString()
		fmt.Printf("Generated token: %s\n", configureArgs.Token)
	}
	port, err := strconv.Atoi(configureArgs.Port)
	if err != nil {
		fmt.Println("The provided port is not a number.")
		os.Exit(1)
	}

	c.Api.Port = port
	c.System.Data = configureArgs.Data
	c.AuthenticationToken = configureArgs.Token
	if err := config.WriteToDisk(c); err != nil {
		fmt.Println("Failed to write the configuration file.\n", err.Error())
		os.Exit(1)
	}

	fmt.Println("Successfully configured drive.")
}
