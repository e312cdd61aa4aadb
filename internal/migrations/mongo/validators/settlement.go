package validators

import "go.mongodb.org/mongo-driver/bson"

// SettlementValidator keys settlements by transaction signature, so _id is
// a base58 string of 64 bytes.
var SettlementValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"session_id",
			"user_id",
			"robot_id",
			"amount_micros",
			"recorded_at",
		},
		"additionalProperties": false,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 64,
				"maxLength": 88,
			},

			"session_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"robot_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"amount_micros": bson.M{
				"bsonType": []string{"long", "int"},
				"minimum":  0,
			},

			"recorded_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
