package mongodb

const (
	CredentialsCollection = "frigg_credentials"
	EntitiesCollection    = "frigg_entities"
)
