package validators

import "go.mongodb.org/mongo-driver/bson"

// RobotValidator is permissive on _id since catalog entries may use either
// ObjectIDs or string IDs.
var RobotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"owner_id",
			"name",
			"price_micros",
			"currency",
			"wallet_address",
			"endpoint",
			"status",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": []string{"objectId", "string"},
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},

			"price_micros": bson.M{
				"bsonType": []string{"long", "int"},
				"minimum":  0,
			},

			"currency": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 10,
			},

			"wallet_address": bson.M{
				"bsonType":  "string",
				"minLength": 32,
				"maxLength": 44,
			},

			"endpoint": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"status": bson.M{
				"enum": []string{"active", "inactive", "maintenance"},
			},

			"rental_plans": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"name", "duration_minutes", "price_micros"},
					"properties": bson.M{
						"duration_minutes": bson.M{
							"bsonType": []string{"int", "long"},
							"minimum":  1,
						},
						"price_micros": bson.M{
							"bsonType": []string{"long", "int"},
							"minimum":  0,
						},
					},
				},
			},

			"execution_count": bson.M{
				"bsonType": []string{"long", "int"},
				"minimum":  0,
			},

			"success_rate": bson.M{
				"bsonType": []string{"double", "int"},
				"minimum":  0,
				"maximum":  1,
			},
		},
	},
}
